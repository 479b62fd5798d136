package backgroundupdate

import (
	"strconv"

	"github.com/tidwall/gjson"

	"walletsync/pkg/models"
)

const messageEvent = "message"

// lastMessage returns the most recent "message" event of a batch.
func lastMessage(batch []Event) (Event, bool) {
	for i := len(batch) - 1; i >= 0; i-- {
		if batch[i].Type == messageEvent {
			return batch[i], true
		}
	}
	return Event{}, false
}

// decodeUpdate parses a message payload. The payload may be a JSON object or
// a JSON string holding one; lt may be a number or a numeric string.
func decodeUpdate(data []byte) (models.TransactionUpdate, bool) {
	if !gjson.ValidBytes(data) {
		return models.TransactionUpdate{}, false
	}
	root := gjson.ParseBytes(data)
	if root.Type == gjson.String {
		if !gjson.Valid(root.Str) {
			return models.TransactionUpdate{}, false
		}
		root = gjson.Parse(root.Str)
	}
	if !root.IsObject() {
		return models.TransactionUpdate{}, false
	}

	account := root.Get("account_id")
	if account.Type != gjson.String || account.Str == "" {
		return models.TransactionUpdate{}, false
	}
	update := models.TransactionUpdate{
		Address: account.Str,
		TxHash:  root.Get("tx_hash").String(),
	}
	if lt := root.Get("lt"); lt.Exists() {
		switch lt.Type {
		case gjson.Number:
			update.Lt = lt.Uint()
		case gjson.String:
			v, err := strconv.ParseUint(lt.Str, 10, 64)
			if err != nil {
				return models.TransactionUpdate{}, false
			}
			update.Lt = v
		default:
			return models.TransactionUpdate{}, false
		}
	}
	return update, true
}

// eventOrder tracks the last event id seen on one connection.
type eventOrder struct {
	last    string
	lastNum uint64
	numeric bool
	seen    bool
}

// accept reports whether id is new. Numeric ids must increase; other ids
// only need to differ from the previous one. Empty ids are always accepted.
func (o *eventOrder) accept(id string) bool {
	if id == "" {
		return true
	}
	n, err := strconv.ParseUint(id, 10, 64)
	isNum := err == nil
	if o.seen {
		if isNum && o.numeric {
			if n <= o.lastNum {
				return false
			}
		} else if id == o.last {
			return false
		}
	}
	o.last, o.lastNum, o.numeric, o.seen = id, n, isNum, true
	return true
}
