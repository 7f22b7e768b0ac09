package builder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/shouni/go-surgery-sim/internal/config"
	"github.com/shouni/go-surgery-sim/pkg/prefs"
)

func TestNewAppContext(t *testing.T) {
	tests := []struct {
		name   string
		driver string
	}{
		{"メモリ", prefs.DriverMemory},
		{"SQLite", prefs.DriverSQLite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Prefs.Driver = tt.driver
			cfg.Prefs.SQLitePath = filepath.Join(t.TempDir(), "prefs.db")

			appCtx, err := NewAppContext(context.Background(), cfg)
			if err != nil {
				t.Fatalf("AppContext の初期化に失敗しました: %v", err)
			}
			defer appCtx.Close()

			if appCtx.Simulator.DefaultInstruction() == "" {
				t.Error("既定の指示文が設定されていません")
			}

			ctrl, err := BuildController(context.Background(), appCtx, appCtx.Prefs, LogFailure)
			if err != nil {
				t.Fatalf("Controller の構築に失敗しました: %v", err)
			}
			if ctrl.Snapshot().Instruction != appCtx.Simulator.DefaultInstruction() {
				t.Error("Controller の既定文が Simulator と一致しません")
			}
		})
	}
}

func TestNewAppContext_UnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Prefs.Driver = "etcd"
	if _, err := NewAppContext(context.Background(), cfg); err == nil {
		t.Error("不明なドライバーでエラーにならなかったのだ")
	}
}

func TestInitializePrefsStore_SessionTTL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	cfg := config.Default()
	cfg.Prefs.Driver = prefs.DriverRedis
	cfg.Prefs.RedisAddr = mr.Addr()
	cfg.SessionTTL = 45 * time.Minute

	store, err := InitializePrefsStore(cfg)
	if err != nil {
		t.Fatalf("設定ストアの初期化に失敗しました: %v", err)
	}
	defer store.Close()

	if err := prefs.Scoped(store, "sess-1").Set(context.Background(), prefs.KeyCredential, "secret"); err != nil {
		t.Fatalf("Set に失敗しました: %v", err)
	}
	key := cfg.Prefs.RedisPrefix + "sess-1:" + prefs.KeyCredential
	if !mr.Exists(key) {
		t.Fatalf("キー %s が保存されていません", key)
	}
	if got := mr.TTL(key); got != cfg.SessionTTL {
		t.Errorf("API キーの有効期限がセッション TTL と一致しません: got=%v want=%v", got, cfg.SessionTTL)
	}
}

func TestBuildServer(t *testing.T) {
	appCtx, err := NewAppContext(context.Background(), config.Default())
	if err != nil {
		t.Fatalf("AppContext の初期化に失敗しました: %v", err)
	}
	defer appCtx.Close()

	srv, err := BuildServer(appCtx)
	if err != nil {
		t.Fatalf("サーバーの構築に失敗しました: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("ステータスが想定外です: %d", rec.Code)
	}
}
