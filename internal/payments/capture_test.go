package payments

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
)

type fakeDoer struct {
	status int
	body   string
	err    error
	lastReq *http.Request
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &http.Response{
		StatusCode: f.status,
		Body:       io.NopCloser(bytes.NewReader([]byte(f.body))),
	}, nil
}

func TestCaptureSuccess(t *testing.T) {
	doer := &fakeDoer{status: http.StatusOK, body: `{"success":true,"reference":"cap-42"}`}
	client := NewClient("http://processor", doer)

	ref, err := client.Capture(context.Background(), 2500, "pm-1")
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if ref != "cap-42" {
		t.Errorf("expected reference cap-42, got %q", ref)
	}
	if doer.lastReq.URL.Path != "/v1/captures" {
		t.Errorf("unexpected path %s", doer.lastReq.URL.Path)
	}
}

func TestCaptureDeclined(t *testing.T) {
	cases := []fakeDoer{
		{status: http.StatusPaymentRequired, body: `{}`},
		{status: http.StatusOK, body: `{"success":false,"message":"card expired"}`},
	}
	for _, doer := range cases {
		client := NewClient("http://processor", &doer)
		_, err := client.Capture(context.Background(), 2500, "pm-1")
		if !errors.Is(err, ErrDeclined) {
			t.Errorf("status %d: expected ErrDeclined, got %v", doer.status, err)
		}
	}
}

func TestCaptureUnavailable(t *testing.T) {
	cases := []fakeDoer{
		{err: errors.New("connection refused")},
		{status: http.StatusBadGateway, body: ""},
	}
	for _, doer := range cases {
		client := NewClient("http://processor", &doer)
		_, err := client.Capture(context.Background(), 2500, "pm-1")
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("expected ErrUnavailable, got %v", err)
		}
	}
}

func TestCaptureRejectsNonPositiveAmount(t *testing.T) {
	client := NewClient("http://processor", &fakeDoer{status: http.StatusOK, body: `{"success":true}`})
	if _, err := client.Capture(context.Background(), 0, "pm-1"); err == nil {
		t.Fatal("expected error for zero amount")
	}
}
