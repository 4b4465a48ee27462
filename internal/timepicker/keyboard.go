package timepicker

import (
	"fmt"
	"time"

	"github.com/avelichko/statbot/internal/models"
)

// Keyboard renders the fixed 4-row picker layout for a value:
//
//	row 1: increase-hour, increase-minute
//	row 2: current hour, current minute (no-op taps, layout symmetry only)
//	row 3: decrease-hour, decrease-minute
//	row 4: confirm
//
// Each button carries the token of the value a tap should produce.
func Keyboard(v Value) models.Keyboard {
	return models.Keyboard{
		{
			{Text: "↑", Data: Encode(IncrementHour(v))},
			{Text: "↑", Data: Encode(IncrementMinute(v))},
		},
		{
			{Text: fmt.Sprintf("%02d", v.Hour), Data: Encode(v)},
			{Text: fmt.Sprintf("%02d", v.Minute), Data: Encode(v)},
		},
		{
			{Text: "↓", Data: Encode(DecrementHour(v))},
			{Text: "↓", Data: Encode(DecrementMinute(v))},
		},
		{
			{Text: "Ok", Data: Encode(MarkConfirmed(v))},
		},
	}
}

// ToUTCInstant anchors hour:minute to "today" in the given IANA timezone and
// converts the result to a UTC instant. It is evaluated at confirmation time,
// not when the picker was rendered, because "today" depends on when the user
// actually confirms.
func ToUTCInstant(hour, minute int, timezone string, now time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load timezone %s: %w", timezone, err)
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc).UTC(), nil
}
