package errcode

import "testing"

func TestFromHTTPStatus(t *testing.T) {
	cases := []struct {
		name   string
		source Source
		status int
		want   Code
	}{
		{"mapbox rate limited", Mapbox, 429, MapboxRateLimited},
		{"mapbox server error", Mapbox, 503, MapboxServerError},
		{"mapbox bad request", Mapbox, 400, MapboxBadRequest},
		{"mapbox client error", Mapbox, 404, MapboxClientError},
		{"google rate limited", Google, 429, GoogleRateLimited},
		{"google server error", Google, 500, GoogleServerError},
		{"openai rate limited", OpenAI, 429, OpenAIRateLimited},
		{"openai server error", OpenAI, 502, OpenAIServerError},
		{"openai client error", OpenAI, 403, OpenAIClientError},
		{"unknown status", Mapbox, 200, UnknownError},
		{"unknown source", Source("OTHER"), 404, UnknownError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FromHTTPStatus(tc.source, tc.status); got != tc.want {
				t.Errorf("FromHTTPStatus(%s, %d) = %s, want %s", tc.source, tc.status, got, tc.want)
			}
		})
	}
}

func TestTimeout(t *testing.T) {
	cases := []struct {
		source Source
		want   Code
	}{
		{Mapbox, MapboxTimeout},
		{Google, GoogleTimeout},
		{OpenAI, OpenAITimeout},
		{Source("OTHER"), UnknownError},
	}
	for _, tc := range cases {
		if got := Timeout(tc.source); got != tc.want {
			t.Errorf("Timeout(%s) = %s, want %s", tc.source, got, tc.want)
		}
	}
}
