package trading

import "fmt"

// Account is a trading account referenced by the batch. Accounts are upserted
// into the durable store before any trade or position that references them.
type Account struct {
	ID   int64
	Name string
}

// AccountName derives the display name used for idempotent account upserts.
func AccountName(id int64) string {
	return fmt.Sprintf("Account-%d", id)
}
