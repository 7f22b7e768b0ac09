package domain

// SimulationRequest は送信時に組み立てられ、アダプターに一度だけ渡されるリクエストです。
type SimulationRequest struct {
	Before      ImageSource
	Reference   ImageSource
	Instruction string
	Credential  string // 任意。クライアント側で保持された API キー
}

// SimulationResult は送信1回ごとの結果です。Image と Err のどちらか一方だけが設定されます。
type SimulationResult struct {
	Image EncodedImage
	Err   *SimulationError
}

// Succeeded は画像が得られた場合に true を返します。
func (r SimulationResult) Succeeded() bool {
	return r.Err == nil && !r.Image.IsZero()
}
