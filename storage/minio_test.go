package storage

import "testing"

func TestObjectKey(t *testing.T) {
	cases := map[string]string{
		"https://livetiming.formula1.com/static/2023/2023-05-28_Monaco_Grand_Prix/2023-05-28_Race/TeamRadio/MAXVER01_1_20230528_151423.mp3": "radio/2023/2023-05-28_Monaco_Grand_Prix/2023-05-28_Race/TeamRadio/MAXVER01_1_20230528_151423.mp3",
		"http://localhost:9999/archive/../clip.mp3": "radio/clip.mp3",
		"TeamRadio/clip.mp3":                        "radio/TeamRadio/clip.mp3",
	}
	for in, want := range cases {
		if got := ObjectKey(in); got != want {
			t.Errorf("ObjectKey(%q) = %q, want %q", in, got, want)
		}
	}
}
