package cron

import "testing"

func FuzzValidateSchedule(f *testing.F) {
	f.Add("*/5 * * * *")
	f.Add("0 0 1 1 *")
	f.Add("@every 10s")
	f.Add("@hourly")
	f.Add("invalid")
	f.Add("")
	f.Add("60 * * * *")

	f.Fuzz(func(_ *testing.T, expr string) {
		_ = ValidateSchedule(expr)
	})
}
