package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/shifts"
	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/tokens"
)

func report() shifts.ClosingReport {
	now := time.Date(2026, 10, 14, 23, 0, 0, 0, time.UTC)
	return shifts.ClosingReport{
		Event:           "cashier_closed",
		SessionID:       "s-1",
		OpenedAt:        now.Add(-8 * time.Hour),
		ClosedAt:        now,
		OpenedBy:        "Ana",
		ClosedBy:        "Ana",
		InitialBalance:  shifts.Units(100, 0),
		FinalBalance:    shifts.Units(150, 0),
		TotalSales:      shifts.Units(100, 0),
		TotalExpenses:   shifts.Units(10, 0),
		ExpectedBalance: shifts.Units(190, 0),
		Difference:      shifts.Units(-40, 0),
		AdminEmail:      "owner@bar.test",
	}
}

func TestWebhook_PostsReportWithSignature(t *testing.T) {
	var got map[string]interface{}
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, "hook-secret-32-bytes-long-enough!!", time.Second)
	require.NoError(t, wh.NotifyClose(context.Background(), report()))

	require.Equal(t, "cashier_closed", got["event"])
	require.Equal(t, "s-1", got["session_id"])
	require.Equal(t, 190.0, got["expected_balance"])
	require.Equal(t, -40.0, got["difference"])
	require.Equal(t, "owner@bar.test", got["admin_email"])
	require.Contains(t, got, "notes")

	require.True(t, strings.HasPrefix(auth, "Bearer "))
	claims, err := tokens.VerifyWebhook("hook-secret-32-bytes-long-enough!!", strings.TrimPrefix(auth, "Bearer "))
	require.NoError(t, err)
	require.Equal(t, "s-1", claims["sub"])
}

func TestWebhook_NoSecretNoAuthorization(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	require.NoError(t, NewWebhook(srv.URL, "", 0).NotifyClose(context.Background(), report()))
	require.Empty(t, auth)
}

func TestWebhook_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, "", time.Second).NotifyClose(context.Background(), report())
	require.ErrorContains(t, err, "502")
}

func TestWebhook_NetworkErrorAndDisabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	require.Error(t, NewWebhook(url, "", time.Second).NotifyClose(context.Background(), report()))
	require.Nil(t, NewWebhook("", "x", time.Second))
}
