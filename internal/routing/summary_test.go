package routing

import (
	"errors"
	"testing"
)

const oneRouteBody = `{
  "status": "OK",
  "routes": [{
    "summary": "首都高速1号羽田線",
    "legs": [{
      "distance": {"text": "12.3 km", "value": 12345},
      "duration": {"text": "31 分", "value": 1830},
      "start_address": "日本、東京都千代田区丸の内１丁目",
      "end_address": "日本、神奈川県横浜市西区高島２丁目"
    }]
  }]
}`

func TestSummarize_OneRoute(t *testing.T) {
	got, err := Summarize([]byte(oneRouteBody))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.DistanceKm != 12.3 {
		t.Errorf("distance = %v, want 12.3", got.DistanceKm)
	}
	if got.DurationMin != 31 {
		t.Errorf("duration = %d, want 31", got.DurationMin)
	}
	if got.Summary != "首都高速1号羽田線" {
		t.Errorf("summary = %q", got.Summary)
	}
	if got.StartAddress != "日本、東京都千代田区丸の内１丁目" {
		t.Errorf("start_address = %q", got.StartAddress)
	}
	if got.EndAddress != "日本、神奈川県横浜市西区高島２丁目" {
		t.Errorf("end_address = %q", got.EndAddress)
	}
}

func TestSummarize_NoRoutes(t *testing.T) {
	for _, body := range []string{
		`{"status":"ZERO_RESULTS","routes":[]}`,
		`{"status":"NOT_FOUND"}`,
	} {
		_, err := Summarize([]byte(body))
		if !errors.Is(err, ErrNoRoutes) {
			t.Errorf("Summarize(%s) err = %v, want ErrNoRoutes", body, err)
		}
	}
}

func TestSummarize_Malformed(t *testing.T) {
	for _, body := range []string{
		`<html>`,
		`{"routes":[{"summary":"x","legs":[]}]}`,
	} {
		_, err := Summarize([]byte(body))
		if !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("Summarize(%s) err = %v, want ErrMalformedResponse", body, err)
		}
	}
}

func TestUnitConversion(t *testing.T) {
	cases := []struct {
		meters  int
		km      float64
		seconds int
		minutes int
	}{
		{meters: 0, km: 0, seconds: 0, minutes: 0},
		{meters: 12345, km: 12.3, seconds: 1830, minutes: 31},
		{meters: 12350, km: 12.4, seconds: 1829, minutes: 30},
		{meters: 999, km: 1.0, seconds: 29, minutes: 0},
		{meters: 50, km: 0.1, seconds: 30, minutes: 1},
	}

	for _, tc := range cases {
		if got := metersToKm(tc.meters); got != tc.km {
			t.Errorf("metersToKm(%d) = %v, want %v", tc.meters, got, tc.km)
		}
		if got := secondsToMinutes(tc.seconds); got != tc.minutes {
			t.Errorf("secondsToMinutes(%d) = %d, want %d", tc.seconds, got, tc.minutes)
		}
	}
}
