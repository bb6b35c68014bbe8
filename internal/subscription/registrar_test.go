package subscription

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/strikegw/internal/secret"
	"github.com/mattjoyce/strikegw/internal/strike"
	"github.com/mattjoyce/strikegw/internal/subscription/mocks"
)

var _ Requester = (*strike.Client)(nil)

func newTestRegistrar(t *testing.T) (*Registrar, *mocks.MockRequester, *bytes.Buffer) {
	t.Helper()
	ctrl := gomock.NewController(t)

	sec, err := secret.New("s3cr3t-registered")
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	req := mocks.NewMockRequester(ctrl)
	return NewRegistrar(req, sec, logger), req, &buf
}

func TestRegister(t *testing.T) {
	r, req, logBuf := newTestRegistrar(t)
	ctx := context.Background()

	req.EXPECT().
		Post(ctx, "/v1/subscriptions", Request{
			WebhookURL:     "https://gw.example.com/webhooks/strike",
			WebhookVersion: "v1",
			Secret:         "s3cr3t-registered",
			Enabled:        true,
			EventTypes:     []string{"invoice.updated"},
		}, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, _, out any) error {
			out.(*Subscription).ID = "sub_1"
			return nil
		})

	id, err := r.Register(ctx, "https://gw.example.com/webhooks/strike")
	require.NoError(t, err)
	assert.Equal(t, "sub_1", id)
	assert.NotContains(t, logBuf.String(), "s3cr3t-registered")
}

func TestRegisterEmptyURL(t *testing.T) {
	r, _, _ := newTestRegistrar(t)

	_, err := r.Register(context.Background(), "")
	assert.Error(t, err)
}

func TestRegisterEmptySecret(t *testing.T) {
	ctrl := gomock.NewController(t)
	r := NewRegistrar(mocks.NewMockRequester(ctrl), secret.Secret{}, nil)

	_, err := r.Register(context.Background(), "https://gw.example.com/hook")
	assert.Error(t, err)
}

func TestRegisterPropagatesError(t *testing.T) {
	r, req, _ := newTestRegistrar(t)
	upstream := &strike.APIError{Method: "POST", Path: "/v1/subscriptions", StatusCode: 401}

	req.EXPECT().Post(gomock.Any(), "/v1/subscriptions", gomock.Any(), gomock.Any()).Return(upstream)

	_, err := r.Register(context.Background(), "https://gw.example.com/hook")
	require.Error(t, err)

	var apiErr *strike.APIError
	assert.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 401, apiErr.StatusCode)
}

func TestList(t *testing.T) {
	r, req, _ := newTestRegistrar(t)

	req.EXPECT().Get(gomock.Any(), "/v1/subscriptions", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, out any) error {
			*out.(*[]Subscription) = []Subscription{{ID: "sub_1", Enabled: true}, {ID: "sub_2"}}
			return nil
		})

	subs, err := r.List(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "sub_2", subs[1].ID)
}

func TestDelete(t *testing.T) {
	r, req, _ := newTestRegistrar(t)

	req.EXPECT().Delete(gomock.Any(), "/v1/subscriptions/sub%2F1").Return(nil)
	assert.NoError(t, r.Delete(context.Background(), "sub/1"))

	req.EXPECT().Delete(gomock.Any(), "/v1/subscriptions/sub_2").Return(strike.ErrNotFound)
	err := r.Delete(context.Background(), "sub_2")
	assert.ErrorIs(t, err, strike.ErrNotFound)

	assert.Error(t, r.Delete(context.Background(), ""))
}

func TestDeleteThroughClientKeepsIDEscaped(t *testing.T) {
	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		seen = req.URL.EscapedPath()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	client, err := strike.New("test-key", srv.URL)
	require.NoError(t, err)
	sec, err := secret.New("s3cr3t-registered")
	require.NoError(t, err)

	r := NewRegistrar(client, sec, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, r.Delete(context.Background(), "a b/c"))
	assert.Equal(t, "/v1/subscriptions/a%20b%2Fc", seen)
}

func TestEnsureRegistered(t *testing.T) {
	const hook = "https://gw.example.com/hook"

	t.Run("existing subscription is reused", func(t *testing.T) {
		r, req, _ := newTestRegistrar(t)
		req.EXPECT().Get(gomock.Any(), "/v1/subscriptions", gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, out any) error {
				*out.(*[]Subscription) = []Subscription{{ID: "sub_1", WebhookURL: hook, Enabled: true}}
				return nil
			})

		id, err := r.EnsureRegistered(context.Background(), hook)
		require.NoError(t, err)
		assert.Equal(t, "sub_1", id)
	})

	t.Run("disabled subscription triggers registration", func(t *testing.T) {
		r, req, _ := newTestRegistrar(t)
		gomock.InOrder(
			req.EXPECT().Get(gomock.Any(), "/v1/subscriptions", gomock.Any()).
				DoAndReturn(func(_ context.Context, _ string, out any) error {
					*out.(*[]Subscription) = []Subscription{{ID: "sub_old", WebhookURL: hook}}
					return nil
				}),
			req.EXPECT().Post(gomock.Any(), "/v1/subscriptions", gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, _ string, _, out any) error {
					out.(*Subscription).ID = "sub_new"
					return nil
				}),
		)

		id, err := r.EnsureRegistered(context.Background(), hook)
		require.NoError(t, err)
		assert.Equal(t, "sub_new", id)
	})
}
