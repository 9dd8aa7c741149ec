package semantic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"argus/domain/evidence"
	"argus/domain/match"
	"argus/domain/order"
	"argus/oracle"
)

type fixedClient struct {
	resp oracle.Response
	err  error
}

func (c *fixedClient) Match(ctx context.Context, req oracle.Request) (oracle.Response, error) {
	return c.resp, c.err
}

func quickRetry() oracle.RetryPolicy {
	return oracle.RetryPolicy{Attempts: 1, Timeout: time.Second, Backoff: 0}
}

func testRegistry(t *testing.T, rows []order.Order) *order.Registry {
	t.Helper()
	reg, err := order.NewRegistry(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), rows)
	require.NoError(t, err)
	return reg
}

func group(clientID, symbol string, qty int64) evidence.InstructionGroup {
	return evidence.InstructionGroup{
		ClientID: clientID,
		Symbol:   symbol,
		Instructions: []evidence.Instruction{
			{Symbol: symbol, Quantity: qty, Side: "BUY"},
		},
	}
}

func newTestMatcher(client oracle.Client) *Matcher {
	cfg := DefaultConfig()
	cfg.Retry = quickRetry()
	return New(client, cfg, nil)
}

func TestSplitExecution(t *testing.T) {
	reg := testRegistry(t, []order.Order{
		{OrderID: "10", ClientID: "NEOWM1", Symbol: "RELIANCE", Quantity: 10, Side: order.Buy},
		{OrderID: "11", ClientID: "NEOWM1", Symbol: "RELIANCE", Quantity: 20, Side: order.Buy},
		{OrderID: "12", ClientID: "NEOWM1", Symbol: "RELIANCE", Quantity: 270, Side: order.Buy},
	})
	m := newTestMatcher(&fixedClient{resp: oracle.Response{
		MatchedOrderIDs: []string{"10", "11", "12"},
		Confidence:      95,
		MatchType:       "SPLIT_EXECUTION",
	}})

	results := m.MatchGroups(context.Background(), reg, []evidence.InstructionGroup{
		group("NEOWM1", "RELIANCE", 300),
	})
	require.Len(t, results, 1)
	r := results[0]
	require.Equal(t, match.SplitExecution, r.Type)
	require.ElementsMatch(t, []string{"10", "11", "12"}, r.CandidateOrderIDs)
	require.Equal(t, 95, r.Confidence)
}

func TestPerfectRequiresHighConfidence(t *testing.T) {
	reg := testRegistry(t, []order.Order{
		{OrderID: "20", ClientID: "NEOWM2", Symbol: "TCS", Quantity: 100, Side: order.Buy},
	})

	for _, tc := range []struct {
		confidence int
		want       match.Type
	}{
		{95, match.PerfectMatch},
		{90, match.PerfectMatch},
		{89, match.BasicMatch},
	} {
		m := newTestMatcher(&fixedClient{resp: oracle.Response{
			MatchedOrderIDs: []string{"20"},
			Confidence:      tc.confidence,
			MatchType:       "PERFECT_MATCH",
		}})
		results := m.MatchGroups(context.Background(), reg, []evidence.InstructionGroup{
			group("NEOWM2", "TCS", 100),
		})
		require.Equal(t, tc.want, results[0].Type, "confidence %d", tc.confidence)
	}
}

func TestPartialAndOverMatch(t *testing.T) {
	reg := testRegistry(t, []order.Order{
		{OrderID: "30", ClientID: "NEOWM3", Symbol: "INFY", Quantity: 60, Side: order.Sell},
	})
	m := newTestMatcher(&fixedClient{resp: oracle.Response{
		MatchedOrderIDs: []string{"30"},
		Confidence:      80,
		MatchType:       "PARTIAL_MATCH",
	}})

	under := m.MatchGroups(context.Background(), reg, []evidence.InstructionGroup{
		group("NEOWM3", "INFY", 100),
	})
	require.Equal(t, match.PartialMatch, under[0].Type)

	over := m.MatchGroups(context.Background(), reg, []evidence.InstructionGroup{
		group("NEOWM3", "INFY", 40),
	})
	require.Equal(t, match.OverMatch, over[0].Type)
}

func TestUnknownOracleIDFlaggedAndDropped(t *testing.T) {
	reg := testRegistry(t, []order.Order{
		{OrderID: "40", ClientID: "NEOWM4", Symbol: "SBIN", Quantity: 50, Side: order.Buy},
	})
	m := newTestMatcher(&fixedClient{resp: oracle.Response{
		MatchedOrderIDs: []string{"40", "99999"},
		Confidence:      92,
		MatchType:       "PERFECT_MATCH",
	}})

	results := m.MatchGroups(context.Background(), reg, []evidence.InstructionGroup{
		group("NEOWM4", "SBIN", 50),
	})
	r := results[0]
	require.Equal(t, []string{"40"}, r.CandidateOrderIDs)
	require.True(t, r.ReviewRequired)
	require.NotEmpty(t, r.Discrepancies)
}

func TestNoOrdersForClient(t *testing.T) {
	reg := testRegistry(t, []order.Order{
		{OrderID: "50", ClientID: "NEOWM5", Symbol: "TCS", Quantity: 10, Side: order.Buy},
	})
	m := newTestMatcher(&fixedClient{})

	results := m.MatchGroups(context.Background(), reg, []evidence.InstructionGroup{
		group("NEOWM9", "TCS", 10),
	})
	r := results[0]
	require.Equal(t, match.NoMatch, r.Type)
	require.Empty(t, r.CandidateOrderIDs)
	require.Contains(t, r.Discrepancies[0], "NEOWM9")
}

func TestClientPrefixNormalization(t *testing.T) {
	reg := testRegistry(t, []order.Order{
		{OrderID: "60", ClientID: "NEOWM6", Symbol: "HDFC", Quantity: 25, Side: order.Buy},
	})
	m := newTestMatcher(&fixedClient{resp: oracle.Response{
		MatchedOrderIDs: []string{"60"},
		Confidence:      91,
		MatchType:       "PERFECT_MATCH",
	}})

	// Instruction spells the code with the legacy EOWM prefix.
	results := m.MatchGroups(context.Background(), reg, []evidence.InstructionGroup{
		group("EOWM6", "HDFC", 25),
	})
	r := results[0]
	require.Equal(t, match.PerfectMatch, r.Type)
	require.Equal(t, "NEOWM6", r.ClientID)
}

func TestOracleFailureFallsBack(t *testing.T) {
	reg := testRegistry(t, []order.Order{
		{OrderID: "70", ClientID: "NEOWM7", Symbol: "WIPRO", Quantity: 15, Side: order.Buy},
		{OrderID: "71", ClientID: "NEOWM7", Symbol: "TCS", Quantity: 15, Side: order.Buy},
	})
	m := newTestMatcher(&fixedClient{err: errors.New("boom")})

	results := m.MatchGroups(context.Background(), reg, []evidence.InstructionGroup{
		group("NEOWM7", "WIPRO", 15),
	})
	r := results[0]
	require.Equal(t, match.NoMatch, r.Type)
	require.Equal(t, 0, r.Confidence)
	require.True(t, r.ReviewRequired)
	require.Equal(t, []string{"70"}, r.CandidateOrderIDs)
}

type classifyingClient struct {
	fixedClient
	class oracle.DiscrepancyClass
}

func (c *classifyingClient) ClassifyDiscrepancy(ctx context.Context, text string) (oracle.DiscrepancyClass, error) {
	return c.class, nil
}

func TestDiscrepancyClassification(t *testing.T) {
	reg := testRegistry(t, []order.Order{
		{OrderID: "90", ClientID: "NEOWM9", Symbol: "ITC", Quantity: 100, Side: order.Buy},
	})
	m := newTestMatcher(&classifyingClient{
		fixedClient: fixedClient{resp: oracle.Response{
			MatchedOrderIDs: []string{"90"},
			Confidence:      70,
			MatchType:       "PARTIAL_MATCH",
			Discrepancies:   []string{"price differs from instruction"},
		}},
		class: oracle.DiscrepancyReporting,
	})

	results := m.MatchGroups(context.Background(), reg, []evidence.InstructionGroup{
		group("NEOWM9", "ITC", 100),
	})
	require.Equal(t, string(oracle.DiscrepancyReporting), results[0].DiscrepancyClass)

	// A backend without the capability leaves the class empty.
	plain := newTestMatcher(&fixedClient{resp: oracle.Response{
		MatchedOrderIDs: []string{"90"},
		Confidence:      70,
		MatchType:       "PARTIAL_MATCH",
		Discrepancies:   []string{"price differs from instruction"},
	}})
	results = plain.MatchGroups(context.Background(), reg, []evidence.InstructionGroup{
		group("NEOWM9", "ITC", 100),
	})
	require.Empty(t, results[0].DiscrepancyClass)
}

func TestAlertMatching(t *testing.T) {
	reg := testRegistry(t, []order.Order{
		{OrderID: "80", ClientID: "NEOWM8", Symbol: "RELIANCE", Quantity: 5, Side: order.Buy},
		{OrderID: "81", ClientID: "NEOWM8", Symbol: "RELIANCE", Quantity: 7, Side: order.Sell},
	})
	m := newTestMatcher(nil)

	results := m.MatchAlerts(context.Background(), reg, []evidence.Alert{
		{AlertID: "A1", ClientID: "NEOWM8", Symbol: "RELIANCE", Side: "SELL"},
		{AlertID: "A2", ClientID: "NEOWM8", Symbol: "UNKNOWN"},
	})
	require.Len(t, results, 2)

	require.Equal(t, match.OMSMatch, results[0].Type)
	require.Equal(t, []string{"81"}, results[0].CandidateOrderIDs)
	require.Equal(t, 100, results[0].Confidence)

	require.Equal(t, match.NoMatch, results[1].Type)
}
