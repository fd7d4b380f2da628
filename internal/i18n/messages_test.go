package i18n

import "testing"

func TestHumanize(t *testing.T) {
	tests := []struct {
		name          string
		statusCode    int
		statusMessage string
		want          string
	}{
		{
			name:          "Given a mapped message When humanized Then the translation is used",
			statusCode:    409,
			statusMessage: "Email already exists",
			want:          "Этот email уже зарегистрирован.",
		},
		{
			name:          "Given any 401 When humanized Then the generic auth text is used",
			statusCode:    401,
			statusMessage: "Invalid credentials",
			want:          "Сначала войдите в систему.",
		},
		{
			name:          "Given any 403 When humanized Then the access text is used",
			statusCode:    403,
			statusMessage: "some internal detail",
			want:          "Нет доступа к выбранному проекту.",
		},
		{
			name:          "Given an unmapped message When humanized Then the fallback is used",
			statusCode:    500,
			statusMessage: "sql: connection refused",
			want:          Fallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Humanize(tt.statusCode, tt.statusMessage); got != tt.want {
				t.Errorf("Humanize(%d, %q) = %q, want %q", tt.statusCode, tt.statusMessage, got, tt.want)
			}
		})
	}
}
