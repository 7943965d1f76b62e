package m3u

import (
	"reflect"
	"testing"
)

func TestSplitTags(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "space delimited with trailing title",
			in:   `-1 group-title="Music" tvg-logo="http://x/y.png",Channel Name`,
			want: []string{"-1", `group-title="Music"`, `tvg-logo="http://x/y.png"`, "Channel Name"},
		},
		{
			name: "comma delimited",
			in:   `-1,a=1,b=2`,
			want: []string{"-1", "a=1", "b=2"},
		},
		{
			name: "quoted comma does not break tags",
			in:   `-1,group-title="x,y",t=1,left`,
			want: []string{"-1", `group-title="x,y"`, "t=1", "left"},
		},
		{
			name: "quoted space does not break tags",
			in:   `-1 tvg-name="My Channel" group-title="News",Display Title`,
			want: []string{"-1", `tvg-name="My Channel"`, `group-title="News"`, "Display Title"},
		},
		{
			name: "quoted delimiter in first tag is protected",
			in:   `group-title="My Group" a=1`,
			want: []string{`group-title="My Group"`, "a=1"},
		},
		{
			name: "single comma splits trailing literal tag",
			in:   `PROGRAM-ID=1,BANDWIDTH=256000`,
			want: []string{"PROGRAM-ID=1", "BANDWIDTH=256000"},
		},
		{
			name: "doubled delimiters are collapsed",
			in:   `-1  a=1   b=2`,
			want: []string{"-1", "a=1", "b=2"},
		},
		{
			name: "leading and trailing delimiters are trimmed",
			in:   ` -1 a=1 `,
			want: []string{"-1", "a=1"},
		},
		{
			name: "empty input",
			in:   "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitTags(tt.in)
			if len(got) == 0 {
				got = nil
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitTags(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSplitTagsMalformedQuoting(t *testing.T) {
	// An odd quote count is tolerated: the scan continues with the rest of
	// the line in whatever protected state the last quote left it.
	got := splitTags(`-1 name="broken title`)

	want := []string{"-1", `name="broken title`}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitTags = %q, want %q", got, want)
	}
}

func TestTrimDelimiters(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  tag  ", "tag"},
		{",,tag,,", "tag"},
		{", tag ,", "tag"},
		{"tag", "tag"},
		{", ,", ""},
	}

	for _, tt := range tests {
		if got := trimDelimiters(tt.in); got != tt.want {
			t.Errorf("trimDelimiters(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
