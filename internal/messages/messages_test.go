package messages

import "testing"

func TestCompileSubstitutesPlaceholders(t *testing.T) {
	c := Template("%user% -> %channel%").Compile("%user%", "alice", "%channel%", "staff")
	if got := c.PlainText(); got != "alice -> staff" {
		t.Fatalf("unexpected compile result: %q", got)
	}
}

func TestLoadFallsBackToDefaults(t *testing.T) {
	cat := Load(map[string]string{
		"channel_join": "now in %channel%",
		"channel_mute": "",
	})

	if got := cat.ChannelJoin().Compile("%channel%", "staff").PlainText(); got != "now in staff" {
		t.Fatalf("override ignored: %q", got)
	}
	if got := cat.ChannelMute(); got != Template(defaultChannelMute) {
		t.Fatalf("blank override should fall back: %q", got)
	}
	if got := cat.PMTargetOffline(); got != Template(defaultPMTargetOffline) {
		t.Fatalf("absent key should fall back: %q", got)
	}
}

func TestReloadReplacesTemplates(t *testing.T) {
	cat := Load(nil)
	cat.Reload(map[string]string{"broadcast_wrapper": "!! %message%"})

	if got := cat.BroadcastWrapper().Compile("%message%", "maintenance").PlainText(); got != "!! maintenance" {
		t.Fatalf("reload not applied: %q", got)
	}
}
