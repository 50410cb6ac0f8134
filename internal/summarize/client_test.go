package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/CornerLeague/Corner-League-Bot/internal/content"
)

func TestHTTPClientSummarize(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var req summarizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "item-1", req.ID)

		json.NewEncoder(w).Encode(content.Summary{
			Text:        "Two sentence recap.",
			Confidence:  0.9,
			KeyEntities: []string{"Lakers"},
		})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, time.Second, zap.NewNop())
	summary, err := client.Summarize(context.Background(), content.ContentItem{
		ID:    "item-1",
		Title: "Lakers win",
		Text:  "The Lakers won again last night.",
	})
	require.NoError(t, err)
	require.Equal(t, "Two sentence recap.", summary.Text)
	require.InDelta(t, 0.9, summary.Confidence, 1e-9)
}

func TestHTTPClientSummarizeServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, time.Second, zap.NewNop())
	_, err := client.Summarize(context.Background(), content.ContentItem{ID: "item-1"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 503")
}

func TestNoOpSummarize(t *testing.T) {
	t.Parallel()

	summary, err := NoOp{}.Summarize(context.Background(), content.ContentItem{ID: "x"})
	require.NoError(t, err)
	require.Empty(t, summary.Text)
}

func TestHTTPClientSummarizeRespectsContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, "{}")
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, time.Second, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Summarize(ctx, content.ContentItem{ID: "x"})
	require.Error(t, err)
}
