package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shouni/go-surgery-sim/pkg/domain"
	"github.com/shouni/go-surgery-sim/pkg/prefs"
	"github.com/shouni/go-surgery-sim/pkg/session"
)

type stubSimulator struct{}

func (stubSimulator) Simulate(_ context.Context, _ domain.SimulationRequest) (domain.EncodedImage, error) {
	return domain.EncodedImage{MediaType: domain.MediaTypePNG, Data: "cmVzdWx0"}, nil
}

type recordingSelector struct {
	slots []domain.Slot
	err   error
}

func (r *recordingSelector) SelectImage(_ context.Context, slot domain.Slot, _ domain.ImageSource) error {
	r.slots = append(r.slots, slot)
	return r.err
}

func TestSaveResult(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	img := domain.EncodedImage{MediaType: domain.MediaTypePNG, Data: "cmVzdWx0"}

	path, err := saveResult(dir, img)
	if err != nil {
		t.Fatalf("保存に失敗したのだ: %v", err)
	}
	if filepath.Base(path) != "ai-simulation-result.png" {
		t.Errorf("ファイル名が想定外なのだ: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("読み込みに失敗したのだ: %v", err)
	}
	if string(data) != "result" {
		t.Errorf("保存内容が想定外なのだ: %q", data)
	}

	t.Run("JPEG は jpg 系の拡張子になること", func(t *testing.T) {
		path, err := saveResult(dir, domain.EncodedImage{MediaType: domain.MediaTypeJPEG, Data: "cmVzdWx0"})
		if err != nil {
			t.Fatalf("保存に失敗したのだ: %v", err)
		}
		if ext := filepath.Ext(path); ext != ".jpg" && ext != ".jpeg" {
			t.Errorf("拡張子が想定外なのだ: %s", ext)
		}
	})

	t.Run("壊れた base64 はエラーになること", func(t *testing.T) {
		if _, err := saveResult(dir, domain.EncodedImage{MediaType: domain.MediaTypePNG, Data: "%%%"}); err == nil {
			t.Error("エラーにならなかったのだ")
		}
	})
}

func TestSelectFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "before.jpg")
	if err := os.WriteFile(path, []byte("\xff\xd8\xff\xe0"), 0644); err != nil {
		t.Fatalf("準備に失敗したのだ: %v", err)
	}

	sel := &recordingSelector{}
	if err := selectFile(context.Background(), sel, domain.SlotBefore, path); err != nil {
		t.Fatalf("選択に失敗したのだ: %v", err)
	}
	if len(sel.slots) != 1 || sel.slots[0] != domain.SlotBefore {
		t.Errorf("スロットが想定外なのだ: %v", sel.slots)
	}

	t.Run("存在しないファイルはエラーになること", func(t *testing.T) {
		if err := selectFile(context.Background(), sel, domain.SlotBefore, filepath.Join(dir, "missing.jpg")); err == nil {
			t.Error("エラーにならなかったのだ")
		}
	})

	t.Run("選択の拒否理由を保持すること", func(t *testing.T) {
		sel := &recordingSelector{err: domain.ErrFileTooLarge}
		if err := selectFile(context.Background(), sel, domain.SlotReference, path); !errors.Is(err, domain.ErrFileTooLarge) {
			t.Errorf("ErrFileTooLarge を期待したのだ: %v", err)
		}
	})
}

func TestApplySessionOptions(t *testing.T) {
	ctx := context.Background()
	store := prefs.NewMemory()
	ctrl, err := session.New(ctx, stubSimulator{}, session.Options{Store: store})
	if err != nil {
		t.Fatalf("Controller の生成に失敗したのだ: %v", err)
	}

	opts := SimulateOptions{APIKey: " cli-key ", Prompt: "Apply the nose only."}
	if err := applySessionOptions(ctx, ctrl, opts, true); err != nil {
		t.Fatalf("オプションの適用に失敗したのだ: %v", err)
	}

	if !ctrl.Snapshot().HasCredential {
		t.Error("API キーが設定されていないのだ")
	}
	if _, ok, _ := store.Get(ctx, prefs.KeyCredential); ok {
		t.Error("--api-key が設定ストアに保存されているのだ")
	}
	if got := ctrl.Snapshot().Instruction; got != opts.Prompt {
		t.Errorf("指示文が想定外なのだ: %q", got)
	}

	t.Run("prompt 未指定なら指示文を変えないこと", func(t *testing.T) {
		before := ctrl.Snapshot().Instruction
		if err := applySessionOptions(ctx, ctrl, SimulateOptions{Prompt: "ignored"}, false); err != nil {
			t.Fatalf("オプションの適用に失敗したのだ: %v", err)
		}
		if got := ctrl.Snapshot().Instruction; got != before {
			t.Errorf("指示文が変わっているのだ: %q", got)
		}
	})
}
