package polling

import "context"

// Update is a minimal Telegram-style item: a monotonically increasing
// update_id plus an opaque payload, used to demonstrate the template's
// "cursor advances by update_id + 1" connector shape (spec.md §4.9).
type Update struct {
	UpdateID int64
	Payload  string
}

// TelegramFetcher is a reference connector showing how a real
// long-poll source plugs into Fetch[Item]: GetUpdates(offset) returns
// a batch sorted by update_id ascending.
type TelegramFetcher struct {
	GetUpdates func(ctx context.Context, offset *int64) ([]Update, error)
}

// Fetch adapts GetUpdates to the polling template's Fetch signature,
// classifying its error as Recoverable (network/transient errors are
// assumed recoverable by this reference connector; a real integration
// would distinguish 4xx auth failures as Fatal).
func (f TelegramFetcher) Fetch(ctx context.Context, offset *int64) FetchResult[Update] {
	updates, err := f.GetUpdates(ctx, offset)
	if err != nil {
		return Recoverable[Update](err.Error())
	}
	return Success(updates)
}

// ApplyAdvancingOffset advances cursor.Offset to max(update_id)+1,
// Telegram's documented acknowledgment convention.
func ApplyAdvancingOffset(updates []Update, cursor *Cursor) error {
	var maxID int64
	for _, u := range updates {
		if u.UpdateID > maxID {
			maxID = u.UpdateID
		}
	}
	next := maxID + 1
	cursor.Offset = &next
	return nil
}
