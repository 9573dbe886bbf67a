package helpers

import "testing"

func TestStripHTML(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "strips tags",
			in:   `<p>Rates <b>rise</b> again</p>`,
			want: "Rates rise again",
		},
		{
			name: "drops scripts entirely",
			in:   `<script>alert(1)</script>Central bank holds`,
			want: "Central bank holds",
		},
		{
			name: "unescapes entities and collapses whitespace",
			in:   "A &amp; B\n\n  C",
			want: "A & B C",
		},
		{
			name: "empty input",
			in:   "   ",
			want: "",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := StripHTML(tt.in); got != tt.want {
				t.Fatalf("StripHTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
