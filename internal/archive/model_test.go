package archive

import "testing"

func TestDedupeParts_CollapsesToNewest(t *testing.T) {
	parts := []Part{
		{Index: 0, Hash: "old0"},
		{Index: 1, Hash: "h1"},
		{Index: 0, Hash: "new0"}, // duplicate index, appended later -> wins
	}

	got := DedupeParts(parts)
	if len(got) != 2 {
		t.Fatalf("expected 2 unique parts, got %d", len(got))
	}
	if got[0].Index != 0 || got[0].Hash != "new0" {
		t.Errorf("expected index 0 to collapse to newest hash, got %+v", got[0])
	}
	if got[1].Index != 1 {
		t.Errorf("expected parts sorted by index, got %+v", got)
	}
}

func TestUniquePartCount(t *testing.T) {
	parts := []Part{{Index: 0}, {Index: 1}, {Index: 1}, {Index: 2}}
	if n := UniquePartCount(parts); n != 3 {
		t.Errorf("UniquePartCount() = %d, want 3", n)
	}
}

func TestPart_EffectivePlainSize_DefaultsToSize(t *testing.T) {
	tests := []struct {
		name string
		part Part
		want int64
	}{
		{"plainSize set", Part{Size: 100, PlainSize: 84}, 84},
		{"plainSize missing", Part{Size: 100}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.part.EffectivePlainSize(); got != tt.want {
				t.Errorf("EffectivePlainSize() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPart_HasMirror(t *testing.T) {
	tests := []struct {
		name string
		part Part
		want bool
	}{
		{"no mirror assigned", Part{}, false},
		{"pending", Part{MirrorProvider: ProviderBot, MirrorPending: true}, false},
		{"complete", Part{MirrorProvider: ProviderBot, MirrorURL: "u", MirrorMessageID: "m"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.part.HasMirror(); got != tt.want {
				t.Errorf("HasMirror() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProvider_Other(t *testing.T) {
	if ProviderWebhook.Other() != ProviderBot {
		t.Error("webhook's other should be bot")
	}
	if ProviderBot.Other() != ProviderWebhook {
		t.Error("bot's other should be webhook")
	}
}

func TestUser_WouldExceedQuota(t *testing.T) {
	tests := []struct {
		name string
		user User
		add  int64
		want bool
	}{
		{"unlimited quota", User{QuotaBytes: 0, UsedBytes: 1 << 40}, 1 << 40, false},
		{"exactly at boundary", User{QuotaBytes: 100, UsedBytes: 90}, 10, false},
		{"one byte over", User{QuotaBytes: 100, UsedBytes: 90}, 11, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.WouldExceedQuota(tt.add); got != tt.want {
				t.Errorf("WouldExceedQuota() = %v, want %v", got, tt.want)
			}
		})
	}
}
