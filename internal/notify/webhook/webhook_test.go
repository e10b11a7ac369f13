package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/delta-harvester/internal/harvest"
)

func TestDeliverPostsEmbed(t *testing.T) {
	t.Parallel()

	var got Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ch, err := New(srv.URL, srv.Client())
	require.NoError(t, err)

	err = ch.Deliver(context.Background(), harvest.Event{
		Title:       "[sitemap scraper]",
		Description: "scraping successful... 3 urls are updated!",
		Severity:    harvest.SeveritySuccess,
	})
	require.NoError(t, err)
	require.Equal(t, Payload{
		Content: "",
		Embeds: []embed{{
			Title:       "[sitemap scraper]",
			Description: "scraping successful... 3 urls are updated!",
			Color:       65280,
		}},
	}, got)
}

func TestDeliverFailsOnNon2xx(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ch, err := New(srv.URL, srv.Client())
	require.NoError(t, err)

	err = ch.Deliver(context.Background(), harvest.Event{Severity: harvest.SeverityError})
	require.ErrorIs(t, err, harvest.ErrNotifyFailure)
	var statusErr *harvest.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	require.EqualValues(t, 1, calls.Load())
}

func TestDeliverUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	ch, err := New(url, nil)
	require.NoError(t, err)
	require.ErrorIs(t, ch.Deliver(context.Background(), harvest.Event{}), harvest.ErrNotifyFailure)
}

func TestNewRequiresURL(t *testing.T) {
	t.Parallel()

	_, err := New("", nil)
	require.Error(t, err)
}
