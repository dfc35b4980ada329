package apiclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"arbiter/internal/contest/model"
	"arbiter/internal/judge/apiclient"
	appErr "arbiter/pkg/errors"
)

const testSecret = "test-secret"

func sampleEvent() model.SubmissionUpdatedEvent {
	return model.SubmissionUpdatedEvent{
		ContestID:    1,
		SubmissionID: 7,
		MemberID:     10,
		ProblemID:    100,
		Status:       model.StatusJudged,
		Answer:       model.AnswerAccepted,
		Version:      3,
		OccurredAt:   time.Now(),
	}
}

func TestReportVerdictSendsSignedToken(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := apiclient.New(apiclient.Config{
		BaseURL:     server.URL,
		ServiceName: "judge-worker",
		TokenSecret: testSecret,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if err := client.ReportVerdict(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("report verdict: %v", err)
	}
	if gotPath != "/internal/v1/contests/1/submissions/7/verdict" {
		t.Fatalf("path = %q", gotPath)
	}

	raw := strings.TrimPrefix(gotAuth, "Bearer ")
	if raw == gotAuth {
		t.Fatalf("authorization header = %q, want bearer token", gotAuth)
	}
	var claims jwt.RegisteredClaims
	if _, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	}); err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Subject != "judge-worker" {
		t.Fatalf("subject = %q, want judge-worker", claims.Subject)
	}
}

func TestReportVerdictReusesCachedToken(t *testing.T) {
	var tokens []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens = append(tokens, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := apiclient.New(apiclient.Config{BaseURL: server.URL, TokenSecret: testSecret})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := client.ReportVerdict(context.Background(), sampleEvent()); err != nil {
			t.Fatalf("report verdict %d: %v", i, err)
		}
	}
	if len(tokens) != 3 {
		t.Fatalf("requests = %d, want 3", len(tokens))
	}
	if tokens[0] != tokens[1] || tokens[1] != tokens[2] {
		t.Fatal("token should be cached between calls")
	}
}

func TestReportVerdictRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer server.Close()

	client, err := apiclient.New(apiclient.Config{BaseURL: server.URL, TokenSecret: testSecret})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	err = client.ReportVerdict(context.Background(), sampleEvent())
	if appErr.GetCode(err) != appErr.ReportFailed {
		t.Fatalf("err = %v, want ReportFailed", err)
	}
}
