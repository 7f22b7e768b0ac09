package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shouni/go-surgery-sim/pkg/domain"
	"github.com/shouni/go-surgery-sim/pkg/encoding"
	"github.com/shouni/go-surgery-sim/pkg/prefs"
	"github.com/shouni/go-surgery-sim/pkg/prompt"
)

// Simulator は Controller が利用する外部呼び出しアダプターです。
type Simulator interface {
	Simulate(ctx context.Context, req domain.SimulationRequest) (domain.EncodedImage, error)
}

// FailureNotifier は Failed に遷移した直後に呼ばれます。
type FailureNotifier func(ctx context.Context, err *domain.SimulationError)

// Options は Controller の設定です。
type Options struct {
	Store                prefs.Store
	DefaultInstruction   string
	MaxUploadBytes       int64
	MaxInstructionLength int
	OnFailure            FailureNotifier
}

// Controller は1回分のセッション状態を保持し、外部呼び出しを1件ずつ調停します。
// すべての遷移はミューテックスで直列化され、外部呼び出し中はロックを保持しません。
type Controller struct {
	mu sync.Mutex
	// persistMu は状態の変更とストアへの反映を同じ順序に保ちます。mu より先に取得します。
	persistMu sync.Mutex

	sim                  Simulator
	store                prefs.Store
	defaultInstruction   string
	maxUploadBytes       int64
	maxInstructionLength int
	onFailure            FailureNotifier

	before      *domain.UploadedImage
	reference   *domain.UploadedImage
	instruction string
	credential  string
	state       State
	attempt     uint64
	// inFlight は Reset 後もまだ戻っていない呼び出しを含めた実行中の件数です。
	inFlight int
}

// New は Controller を生成し、保存済みの指示文の下書きと API キーを読み込みます。
func New(ctx context.Context, sim Simulator, opts Options) (*Controller, error) {
	if sim == nil {
		return nil, fmt.Errorf("Simulator は必須です")
	}
	store := opts.Store
	if store == nil {
		store = prefs.NewMemory()
	}
	def := opts.DefaultInstruction
	if def == "" {
		def = prompt.DefaultInstruction()
	}
	maxLen := opts.MaxInstructionLength
	if maxLen == 0 {
		maxLen = prompt.MaxInstructionLength
	}

	c := &Controller{
		sim:                  sim,
		store:                store,
		defaultInstruction:   def,
		maxUploadBytes:       opts.MaxUploadBytes,
		maxInstructionLength: maxLen,
		onFailure:            opts.OnFailure,
		instruction:          def,
		state:                Idle{},
	}

	if draft, ok := c.loadPref(ctx, prefs.KeyInstructionDraft); ok {
		c.instruction = prompt.Truncate(draft, maxLen)
	}
	if key, ok := c.loadPref(ctx, prefs.KeyCredential); ok {
		c.credential = key
	}
	return c, nil
}

// State は現在の状態を返します。
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SelectImage は before / reference の画像を選択・差し替えます。
// サイズ超過や非対応形式の場合は状態を一切変更せずにエラーを返します。
func (c *Controller) SelectImage(ctx context.Context, slot domain.Slot, src domain.ImageSource) error {
	if src == nil {
		return fmt.Errorf("画像が指定されていません")
	}
	if c.isPending() {
		return domain.ErrSubmissionInFlight
	}

	if err := encoding.ValidateSelection(src, c.maxUploadBytes); err != nil {
		slog.WarnContext(ctx, "画像の選択を拒否しました", "slot", slot, "name", src.Name(), "size", src.Size(), "error", err)
		return err
	}
	preview, err := encoding.Encode(ctx, src)
	if err != nil {
		return err
	}
	uploaded := &domain.UploadedImage{Source: src, Preview: preview}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, pending := c.state.(Pending); pending {
		return domain.ErrSubmissionInFlight
	}

	switch slot {
	case domain.SlotBefore:
		c.before = uploaded
	case domain.SlotReference:
		c.reference = uploaded
	default:
		return fmt.Errorf("unknown image slot: %q", slot)
	}

	c.state = c.readiness()
	slog.DebugContext(ctx, "画像を選択しました", "slot", slot, "name", src.Name(), "phase", c.state.Phase())
	return nil
}

// SetInstruction は指示文を編集します。送信中以外はいつでも可能で、状態は変わりません。
func (c *Controller) SetInstruction(ctx context.Context, text string) (string, error) {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.Lock()
	if _, pending := c.state.(Pending); pending {
		c.mu.Unlock()
		return "", domain.ErrSubmissionInFlight
	}
	text = prompt.Truncate(text, c.maxInstructionLength)
	c.instruction = text
	c.mu.Unlock()

	if text == c.defaultInstruction {
		c.deletePref(ctx, prefs.KeyInstructionDraft)
	} else {
		c.savePref(ctx, prefs.KeyInstructionDraft, text)
	}
	return text, nil
}

// SetCredential はクライアント側で保持する API キーを設定します。空文字なら削除します。
// 送信中のリクエストには影響しません。
func (c *Controller) SetCredential(ctx context.Context, key string) {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.Lock()
	c.credential = key
	c.mu.Unlock()

	if key == "" {
		c.deletePref(ctx, prefs.KeyCredential)
		return
	}
	c.savePref(ctx, prefs.KeyCredential, key)
}

// UseCredential はこの Controller の間だけ使う API キーを設定します。ストアには保存しません。
func (c *Controller) UseCredential(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credential = key
}

// Submit は外部サービスへ1回だけリクエストを送ります。
// 送信中なら ErrSubmissionInFlight、結果表示中なら ErrNotReady を返し、何もしません。
// 画像が揃っていない場合は外部呼び出しを行わずに Failed（ValidationError）へ遷移します。
// 送信の結果は SimulationResult として返し、error は拒否・破棄の場合にだけ返します。
func (c *Controller) Submit(ctx context.Context) (domain.SimulationResult, error) {
	c.mu.Lock()
	switch c.state.(type) {
	case Pending:
		c.mu.Unlock()
		return domain.SimulationResult{}, domain.ErrSubmissionInFlight
	case Succeeded:
		c.mu.Unlock()
		return domain.SimulationResult{}, domain.ErrNotReady
	}
	if c.inFlight > 0 {
		c.mu.Unlock()
		return domain.SimulationResult{}, domain.ErrSubmissionInFlight
	}
	if c.before == nil || c.reference == nil {
		se := domain.NewValidationError(domain.MsgMissingImages)
		c.state = Failed{Err: se}
		c.mu.Unlock()
		c.notifyFailure(ctx, se)
		return domain.SimulationResult{Err: se}, nil
	}

	c.attempt++
	attempt := c.attempt
	req := domain.SimulationRequest{
		Before:      c.before.Source,
		Reference:   c.reference.Source,
		Instruction: prompt.Resolve(c.instruction, c.defaultInstruction),
		Credential:  c.credential,
	}
	c.state = Pending{Attempt: attempt}
	c.inFlight++
	c.mu.Unlock()

	slog.InfoContext(ctx, "シミュレーションを開始します", "attempt", attempt)
	img, err := c.sim.Simulate(ctx, req)

	c.mu.Lock()
	c.inFlight--
	if p, ok := c.state.(Pending); !ok || p.Attempt != attempt {
		c.mu.Unlock()
		slog.InfoContext(ctx, "リセット済みのため結果を破棄しました", "attempt", attempt)
		return domain.SimulationResult{}, domain.ErrAttemptDiscarded
	}

	if err == nil && img.IsZero() {
		err = domain.NewNoImageError()
	}
	if err != nil {
		se := domain.AsSimulationError(err)
		c.state = Failed{Err: se}
		c.mu.Unlock()
		c.notifyFailure(ctx, se)
		return domain.SimulationResult{Err: se}, nil
	}

	c.state = Succeeded{Result: img}
	c.mu.Unlock()
	slog.InfoContext(ctx, "シミュレーションが完了しました", "attempt", attempt, "mime_type", img.MediaType)
	return domain.SimulationResult{Image: img}, nil
}

// Reset はどの状態からでも Idle に戻し、画像・結果・エラーを破棄して指示文を既定値に戻します。
// 送信中にリセットされた場合、その呼び出しの結果は破棄されます。
func (c *Controller) Reset(ctx context.Context) {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.Lock()
	c.before = nil
	c.reference = nil
	c.instruction = c.defaultInstruction
	c.state = Idle{}
	c.mu.Unlock()

	c.deletePref(ctx, prefs.KeyInstructionDraft)
	slog.DebugContext(ctx, "セッションをリセットしました")
}

// Result は成功時の合成画像を返します。
func (c *Controller) Result() (domain.EncodedImage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.state.(Succeeded); ok {
		return s.Result, true
	}
	return domain.EncodedImage{}, false
}

// readiness は画像の有無から Idle / Ready を決めます。呼び出し側でロックを保持してください。
func (c *Controller) readiness() State {
	if c.before != nil && c.reference != nil {
		return Ready{}
	}
	return Idle{}
}

func (c *Controller) isPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, pending := c.state.(Pending)
	return pending
}

func (c *Controller) notifyFailure(ctx context.Context, se *domain.SimulationError) {
	slog.WarnContext(ctx, "シミュレーションに失敗しました", "kind", se.Kind.String(), "message", se.Message)
	if c.onFailure != nil {
		c.onFailure(ctx, se)
	}
}

func (c *Controller) loadPref(ctx context.Context, key string) (string, bool) {
	v, ok, err := c.store.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "設定の読み込みに失敗しました", "key", key, "error", err)
		return "", false
	}
	return v, ok && v != ""
}

func (c *Controller) savePref(ctx context.Context, key, value string) {
	if err := c.store.Set(ctx, key, value); err != nil {
		slog.WarnContext(ctx, "設定の保存に失敗しました", "key", key, "error", err)
	}
}

func (c *Controller) deletePref(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		slog.WarnContext(ctx, "設定の削除に失敗しました", "key", key, "error", err)
	}
}
