package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseResponseWithMarkdownFences(t *testing.T) {
	reply := "```json\n" + `{
  "matched_order_ids": ["500", "501"],
  "confidence_score": 85,
  "match_type": "SPLIT_EXECUTION",
  "discrepancies": ["Price: CMP vs Actual Price 667"],
  "review_required": true
}` + "\n```"

	resp, err := ParseResponse(reply)
	require.NoError(t, err)
	require.Equal(t, []string{"500", "501"}, resp.MatchedOrderIDs)
	require.Equal(t, 85, resp.Confidence)
	require.Equal(t, "SPLIT_EXECUTION", resp.MatchType)
	require.True(t, resp.ReviewRequired)
}

func TestParseResponseWithSurroundingProse(t *testing.T) {
	reply := `Based on my analysis:
{"matched_order_ids": ["700"], "confidence_score": 95, "match_type": "EXACT_MATCH"}
Let me know if you need anything else.`

	resp, err := ParseResponse(reply)
	require.NoError(t, err)
	require.Equal(t, "PERFECT_MATCH", resp.MatchType) // EXACT_MATCH maps to the canonical name
	require.Equal(t, []string{"700"}, resp.MatchedOrderIDs)
}

func TestValidateRepairsBounds(t *testing.T) {
	resp, err := Validate(Response{Confidence: 140, MatchType: "no_match"})
	require.NoError(t, err)
	require.Equal(t, 100, resp.Confidence)
	require.Equal(t, "NO_MATCH", resp.MatchType)
	require.NotNil(t, resp.MatchedOrderIDs)
	require.NotNil(t, resp.Discrepancies)

	resp, err = Validate(Response{Confidence: -10, MatchType: ""})
	require.NoError(t, err)
	require.Equal(t, 0, resp.Confidence)
	require.Equal(t, "NO_MATCH", resp.MatchType)
}

func TestValidateRejectsUnknownMatchType(t *testing.T) {
	_, err := Validate(Response{MatchType: "MAYBE_MATCH"})
	require.ErrorIs(t, err, ErrBadResponse)
}

func TestParseResponseGarbage(t *testing.T) {
	for _, reply := range []string{"", "no json here", "{broken"} {
		if _, err := ParseResponse(reply); !errors.Is(err, ErrBadResponse) {
			t.Errorf("ParseResponse(%q) err = %v, want ErrBadResponse", reply, err)
		}
	}
}

// -------------------- Invoke --------------------

type scriptedClient struct {
	calls int
	errs  []error
	resp  Response
}

func (s *scriptedClient) Match(ctx context.Context, req Request) (Response, error) {
	s.calls++
	if s.calls <= len(s.errs) {
		return Response{}, s.errs[s.calls-1]
	}
	return s.resp, nil
}

func TestInvokeRetriesThenSucceeds(t *testing.T) {
	c := &scriptedClient{
		errs: []error{errors.New("boom"), context.DeadlineExceeded},
		resp: Response{MatchType: "NO_MATCH"},
	}
	out := Invoke(context.Background(), c, Request{}, RetryPolicy{Attempts: 3, Backoff: time.Millisecond})
	require.Equal(t, OK, out.Kind)
	require.Equal(t, 3, out.Attempts)
}

func TestInvokeExhaustsAttempts(t *testing.T) {
	c := &scriptedClient{
		errs: []error{context.DeadlineExceeded, context.DeadlineExceeded},
	}
	out := Invoke(context.Background(), c, Request{}, RetryPolicy{Attempts: 2, Backoff: time.Millisecond})
	require.Equal(t, Timeout, out.Kind)
	require.Equal(t, 2, out.Attempts)
	require.Error(t, out.Err)
}

func TestInvokeClassifiesMalformed(t *testing.T) {
	c := &scriptedClient{errs: []error{ErrBadResponse}}
	out := Invoke(context.Background(), c, Request{}, RetryPolicy{Attempts: 1})
	require.Equal(t, Malformed, out.Kind)
}

func TestInvokeStopsWhenCallerContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &scriptedClient{errs: []error{errors.New("boom"), errors.New("boom")}}
	out := Invoke(ctx, c, Request{}, RetryPolicy{Attempts: 5, Backoff: time.Millisecond})
	require.Equal(t, 1, out.Attempts)
	require.NotEqual(t, OK, out.Kind)
}
