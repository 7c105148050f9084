package plan

import (
	"context"
	"errors"
	"log/slog"
)

// ExtractItems lists the items of a plan. Malformed or empty input and
// unknown plan types yield an empty list; failures are logged with the
// default logger.
func ExtractItems(input any, t Type) []Item {
	return Extract(context.Background(), slog.Default(), input, t)
}

// Extract is ExtractItems with an explicit logger.
func Extract(ctx context.Context, logger *slog.Logger, input any, t Type) (items []Item) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "plan extraction panicked",
				slog.String("plan_type", string(t)),
				slog.Any("panic", r),
			)
			items = []Item{}
		}
	}()

	doc, err := Decode(input, t)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, errEmptyPlan) {
			level = slog.LevelDebug
		}
		logger.Log(ctx, level, "failed to extract plan items",
			slog.String("plan_type", string(t)),
			slog.String("error", err.Error()),
		)
		return []Item{}
	}

	items = doc.items(t)
	if items == nil {
		items = []Item{}
	}
	return items
}
