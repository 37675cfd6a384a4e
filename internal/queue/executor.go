package queue

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPExecutor es el Executor por defecto: entrega cada mutación como un
// request HTTP contra BaseURL + Target y clasifica la respuesta.
//
//	2xx           => OutcomeSuccess
//	408, 429      => OutcomeRetry (el server pide reintentar)
//	resto de 4xx  => OutcomePermanent
//	5xx, red caída => OutcomeRetry
type HTTPExecutor struct {
	BaseURL string
	Client  *http.Client
	Header  http.Header // headers extra (auth, etc.); opcional
}

// NewHTTPExecutor crea un executor con timeout razonable para mobile.
func NewHTTPExecutor(baseURL string) *HTTPExecutor {
	return &HTTPExecutor{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func methodFor(k Kind) string {
	switch k {
	case KindCreate:
		return http.MethodPost
	case KindReplace:
		return http.MethodPut
	case KindPatch:
		return http.MethodPatch
	case KindDelete:
		return http.MethodDelete
	}
	return http.MethodPost
}

func (e *HTTPExecutor) Execute(ctx context.Context, m Mutation) (Outcome, error) {
	url := strings.TrimRight(e.BaseURL, "/") + "/" + strings.TrimLeft(m.Target, "/")

	var body io.Reader
	if len(m.Body) > 0 {
		body = bytes.NewReader(m.Body)
	}
	req, err := http.NewRequestWithContext(ctx, methodFor(m.Kind), url, body)
	if err != nil {
		// request inconstituible: reintentar no va a cambiar nada
		return OutcomePermanent, fmt.Errorf("build request: %w", err)
	}
	if len(m.Body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range e.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return OutcomeRetry, err
	}
	defer resp.Body.Close()
	// drenar para reusar la conexión
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return OutcomeSuccess, nil
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests:
		return OutcomeRetry, fmt.Errorf("status %d", resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return OutcomePermanent, fmt.Errorf("status %d", resp.StatusCode)
	default:
		return OutcomeRetry, fmt.Errorf("status %d", resp.StatusCode)
	}
}
