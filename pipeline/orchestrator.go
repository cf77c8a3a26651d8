package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"catalog-ingest/client"
)

// PageFunc fetches one listing page. An empty returned token means the
// listing is exhausted.
type PageFunc[T any] func(ctx context.Context, token string) ([]T, string, error)

// FetchOutcome describes how far a bounded fetch pass got.
type FetchOutcome[T any] struct {
	Items     []T
	NextToken string
	Complete  bool
	Pages     int
}

// FetchPages pulls listing pages starting at startToken until the
// listing ends or maxPages is reached. On error it returns the items
// and token gathered so far alongside the error, so the caller can
// checkpoint the partial progress. Quota failures abort immediately
// and are logged distinctly from other failures.
func FetchPages[T any](ctx context.Context, name string, fetch PageFunc[T], startToken string, maxPages int, m *Metrics) (FetchOutcome[T], error) {
	outcome := FetchOutcome[T]{NextToken: startToken}
	token := startToken

	for outcome.Pages < maxPages {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		items, next, err := fetch(ctx, token)
		if err != nil {
			m.IncAPIError(client.ErrorTypeLabel(err))
			if client.IsQuota(err) {
				slog.Error("fetch aborted on quota exhaustion",
					slog.String("pipeline", name),
					slog.Int("pages_fetched", outcome.Pages),
					slog.Any("error", err),
				)
				return outcome, fmt.Errorf("fetch page for %s: %w", name, err)
			}
			return outcome, fmt.Errorf("fetch page for %s: %w", name, err)
		}

		outcome.Items = append(outcome.Items, items...)
		outcome.Pages++
		outcome.NextToken = next
		m.IncPage(name)
		m.AddItems(name, len(items))

		slog.Debug("fetched listing page",
			slog.String("pipeline", name),
			slog.Int("page", outcome.Pages),
			slog.Int("items", len(items)),
		)

		if next == "" {
			outcome.Complete = true
			return outcome, nil
		}
		token = next
	}

	slog.Info("page cap reached, deferring remainder",
		slog.String("pipeline", name),
		slog.Int("pages", outcome.Pages),
		slog.String("resume_token", outcome.NextToken),
	)
	return outcome, nil
}
