// Package server provides HTTP handlers and server setup for the LLM gateway.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tidwall/gjson"

	"llmgate/internal/core"
	"llmgate/internal/gateway"
	"llmgate/internal/streaming"
)

// Completer runs a chat completion. *gateway.Gateway satisfies it.
type Completer interface {
	Complete(ctx context.Context, req *core.ChatRequest) (gateway.Result, error)
}

// ProviderLister describes the registered providers. *providers.Registry satisfies it.
type ProviderLister interface {
	Info() []core.ProviderInfo
}

// Handler holds the HTTP handlers
type Handler struct {
	gateway   Completer
	providers ProviderLister
}

// NewHandler creates a new handler. providers may be nil.
func NewHandler(gw Completer, providers ProviderLister) *Handler {
	return &Handler{
		gateway:   gw,
		providers: providers,
	}
}

// ChatCompletion handles POST /v1/chat/completions. A request with
// "stream": true is answered with server-sent events, one chunk per event,
// followed by "data: [DONE]".
func (h *Handler) ChatCompletion(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return httpErr
		}
		return handleError(c, core.NewInvalidRequestError("failed to read request body", err))
	}

	req, err := decodeChatRequest(body)
	if err != nil {
		return handleError(c, err)
	}

	res, err := h.gateway.Complete(c.Request().Context(), req)
	if err != nil {
		return handleError(c, err)
	}

	switch r := res.(type) {
	case *gateway.ResponseResult:
		return c.JSON(http.StatusOK, r.Response)
	case *gateway.StreamResult:
		return h.writeStream(c, r.Stream)
	default:
		gateway.Release(res)
		return handleError(c, fmt.Errorf("unexpected result type %T", res))
	}
}

// decodeChatRequest parses a request body. Top-level fields that are not
// part of the canonical request become provider extra parameters.
func decodeChatRequest(body []byte) (*core.ChatRequest, error) {
	if !gjson.ValidBytes(body) {
		return nil, core.NewInvalidRequestError("request body is not valid JSON", nil)
	}
	parsed := gjson.ParseBytes(body)
	if !parsed.IsObject() {
		return nil, core.NewInvalidRequestError("request body must be a JSON object", nil)
	}

	var req core.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, core.NewInvalidRequestError("invalid request body: "+err.Error(), err)
	}

	parsed.ForEach(func(key, value gjson.Result) bool {
		if core.IsRequestField(key.String()) {
			return true
		}
		if req.ExtraParams == nil {
			req.ExtraParams = make(map[string]any)
		}
		req.ExtraParams[key.String()] = value.Value()
		return true
	})
	return &req, nil
}

// writeStream re-encodes the chunk stream as server-sent events. Once the
// headers are out, a failure is reported as a final error event.
func (h *Handler) writeStream(c echo.Context, stream core.ChunkStream) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ctx := c.Request().Context()
	for chunk, err := range streaming.All(stream) {
		if err != nil {
			slog.WarnContext(ctx, "stream failed", "error", err, "request_id", core.GetRequestID(ctx))
			_ = writeEvent(w, errorBody(err))
			return nil
		}
		if err := writeEvent(w, chunk); err != nil {
			// The client went away; leaving the loop closes the upstream stream.
			slog.DebugContext(ctx, "client disconnected during stream", "error", err)
			return nil
		}
	}

	_, _ = io.WriteString(w, "data: [DONE]\n\n")
	w.Flush()
	return nil
}

func writeEvent(w *echo.Response, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	w.Flush()
	return nil
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// ListProviders handles GET /v1/providers
func (h *Handler) ListProviders(c echo.Context) error {
	resp := core.ProvidersResponse{Object: "list", Data: []core.ProviderInfo{}}
	if h.providers != nil {
		resp.Data = append(resp.Data, h.providers.Info()...)
	}
	return c.JSON(http.StatusOK, resp)
}

// handleError converts gateway errors to appropriate HTTP responses
func handleError(c echo.Context, err error) error {
	var gatewayErr *core.GatewayError
	if errors.As(err, &gatewayErr) {
		return c.JSON(gatewayErr.HTTPStatusCode(), gatewayErr.ToJSON())
	}

	slog.Error("unexpected handler error", "error", err)
	return c.JSON(http.StatusInternalServerError, errorBody(err))
}

func errorBody(err error) map[string]interface{} {
	var gatewayErr *core.GatewayError
	if errors.As(err, &gatewayErr) {
		return gatewayErr.ToJSON()
	}
	return map[string]interface{}{
		"error": map[string]interface{}{
			"type":    "internal_error",
			"message": "an unexpected error occurred",
		},
	}
}
