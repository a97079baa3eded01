package permgate

import "testing"

func TestConfigBuilder(t *testing.T) {
	reports, err := NewRouteBuilder("/reports").All("reports.view", "payments.view").Fallback("/leads").Build()
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	leads, err := NewMenuItemBuilder("Leads", "/leads").Icon("group").Requires("leads.view").Build()
	if err != nil {
		t.Fatalf("menu item: %v", err)
	}
	settings, _ := NewMenuItemBuilder("Settings", "/settings").AdminOnly().Build()

	cfg, err := NewConfigBuilder().
		Backend("https://api.example.com/api", 3000).
		RedisSessions("localhost:6379", 2).
		StrictFallback(true).
		Policy(ResourcePayments, ResourcePolicy{ManageImpliesView: true}).
		AddRoute(reports).
		AddMenuItem(leads).
		AddMenuItem(settings).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if cfg.Session.Driver != SessionDriverRedis || cfg.Session.RedisDB != 2 {
		t.Fatalf("unexpected session config %+v", cfg.Session)
	}
	if len(cfg.Routes) != 1 || !cfg.Routes[0].RequireAll || len(cfg.Routes[0].Permissions) != 2 {
		t.Fatalf("unexpected routes %+v", cfg.Routes)
	}
	if len(cfg.Menu) != 2 || cfg.Menu[0].Permission == nil || !cfg.Menu[1].AdminOnly {
		t.Fatalf("unexpected menu %+v", cfg.Menu)
	}

	data, err := NewConfigBuilder().WithDefaultConsole().ToYAML()
	if err != nil {
		t.Fatalf("to yaml: %v", err)
	}
	back, err := NewConfigLoader().LoadYAML(data)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(back.Routes) != len(DefaultRoutes()) {
		t.Fatalf("expected default routes after round trip")
	}
}

func TestBuildersRejectBadPermissions(t *testing.T) {
	if _, err := NewRouteBuilder("/x").Any("widgets.view").Build(); !IsCode(err, CodeInvalidPermission) {
		t.Fatalf("expected invalid_permission, got %v", err)
	}
	if _, err := NewMenuItemBuilder("Dash", "/").Requires("dashboard.manage").Build(); err == nil {
		t.Fatalf("dashboard.manage must be rejected")
	}
	if _, err := NewConfigBuilder().SQLiteSessions("").Build(); !IsCode(err, CodeInvalidConfig) {
		t.Fatalf("sqlite without dsn must fail, got %v", err)
	}
}
