package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/open-runtimes/executor/apierrors"
	"github.com/open-runtimes/executor/types"
)

// minResponseFormatVersion is the first version that understands the
// multi-valued headers shape; older callers get the collapsed,
// single-value-per-key form.
const minResponseFormatVersion = "0.11.0"

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	runtimeID := chi.URLParam(r, "runtimeId")

	var req types.InvokeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apierrors.WriteJSON(w, apierrors.ExecutionBadJSON("Invalid JSON body"))
			return
		}
	}

	result, apiErr := s.invoker.Invoke(r.Context(), runtimeID, req)
	if apiErr != nil {
		apierrors.WriteJSON(w, apiErr)
		return
	}

	resp := types.InvokeResponse{
		StatusCode: result.StatusCode,
		Headers:    renderHeaders(result.Headers, r.Header.Get("x-executor-response-format")),
		Body:       result.Body,
		Logs:       result.Logs,
		Errors:     result.Errors,
		Duration:   result.Duration,
		StartTime:  result.StartTime,
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	writeMultipart(w, resp)
}

// renderHeaders collapses multi-value headers to their last value when the
// caller declares a response-format version older than 0.11.0, preserving
// compatibility with clients that predate multi-value header support.
func renderHeaders(headers map[string][]string, formatVersion string) map[string]any {
	out := make(map[string]any, len(headers))
	collapse := formatVersion != "" && versionLess(formatVersion, minResponseFormatVersion)
	for k, values := range headers {
		if len(values) == 0 {
			continue
		}
		if collapse {
			out[k] = values[len(values)-1]
		} else if len(values) == 1 {
			out[k] = values[0]
		} else {
			out[k] = values
		}
	}
	return out
}

// versionLess compares two dotted version strings component-wise.
func versionLess(a, b string) bool {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv int
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			return av < bv
		}
	}
	return false
}

// wantsJSON reports whether the caller's Accept header asks for JSON;
// anything else (including an absent/wildcard Accept) falls back to
// multipart/form-data.
func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") || strings.Contains(accept, "application/*")
}

// writeMultipart renders the execution result as a multipart/form-data body,
// the shape older SDKs expect when the client can't consume JSON-encoded
// binary bodies directly.
func writeMultipart(w http.ResponseWriter, resp types.InvokeResponse) {
	boundary := fmt.Sprintf("----WebKitFormBoundary%s", strconv.FormatInt(time.Now().UnixNano(), 36))
	w.Header().Set("Content-Type", "multipart/form-data; boundary="+boundary)
	w.WriteHeader(http.StatusOK)

	writeField := func(name, value string) {
		fmt.Fprintf(w, "--%s\r\n", boundary)
		fmt.Fprintf(w, "Content-Disposition: form-data; name=%q\r\n\r\n", name)
		fmt.Fprintf(w, "%s\r\n", value)
	}

	writeField("body", resp.Body)
	writeField("statusCode", fmt.Sprintf("%d", resp.StatusCode))
	headersJSON, _ := json.Marshal(resp.Headers)
	writeField("headers", string(headersJSON))
	writeField("duration", fmt.Sprintf("%f", resp.Duration))
	writeField("startTime", fmt.Sprintf("%f", resp.StartTime))
	if resp.Logs != "" {
		writeField("logs", resp.Logs)
	}
	if resp.Errors != "" {
		writeField("errors", resp.Errors)
	}
	fmt.Fprintf(w, "--%s--\r\n", boundary)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	runtimeID := chi.URLParam(r, "runtimeId")

	var req types.CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.WriteJSON(w, apierrors.ExecutionBadJSON("Invalid JSON body"))
		return
	}
	if req.Command == "" {
		apierrors.WriteJSON(w, apierrors.ExecutionBadRequest("command is required"))
		return
	}

	output, apiErr := s.invoker.Command(r.Context(), runtimeID, req.Command, req.Timeout)
	if apiErr != nil {
		apierrors.WriteJSON(w, apiErr)
		return
	}

	writeJSON(w, http.StatusOK, types.CommandResponse{Output: output})
}
