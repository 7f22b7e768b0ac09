package session

import (
	"fmt"

	"github.com/shouni/go-surgery-sim/pkg/domain"
)

// Phase はセッション状態の種類です。
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseReady
	PhasePending
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseReady:
		return "ready"
	case PhasePending:
		return "pending"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText は JSON 上で状態名を文字列として出力します。
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText は状態名から Phase を復元します。
func (p *Phase) UnmarshalText(text []byte) error {
	for candidate := PhaseIdle; candidate <= PhaseFailed; candidate++ {
		if candidate.String() == string(text) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown phase: %q", text)
}

// State はセッション状態のタグ付き共用体です。
// 実装は Idle, Ready, Pending, Succeeded, Failed の5つに限られます。
type State interface {
	Phase() Phase
	sealed()
}

// Idle は画像が揃っていない状態です。
type Idle struct{}

// Ready は2枚の画像が揃い、送信可能な状態です。
type Ready struct{}

// Pending はリクエスト送信中の状態です。Attempt は送信ごとの通し番号です。
type Pending struct {
	Attempt uint64
}

// Succeeded は合成画像を受け取った状態です。
type Succeeded struct {
	Result domain.EncodedImage
}

// Failed はエラーを保持している状態です。
type Failed struct {
	Err *domain.SimulationError
}

func (Idle) Phase() Phase      { return PhaseIdle }
func (Ready) Phase() Phase     { return PhaseReady }
func (Pending) Phase() Phase   { return PhasePending }
func (Succeeded) Phase() Phase { return PhaseSucceeded }
func (Failed) Phase() Phase    { return PhaseFailed }

func (Idle) sealed()      {}
func (Ready) sealed()     {}
func (Pending) sealed()   {}
func (Succeeded) sealed() {}
func (Failed) sealed()    {}
