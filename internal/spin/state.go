package spin

import "fmt"

// Action 是作用在抽奖上的操作
type Action string

const (
	ActionFinalize Action = "finalize"
	ActionCancel   Action = "cancel"
)

type transition struct {
	next    Status
	changed bool
	err     error
}

var transitions = map[Status]map[Action]transition{
	StatusPending: {
		ActionFinalize: {next: StatusFinalized, changed: true},
		ActionCancel:   {next: StatusCancelled, changed: true},
	},
	StatusFinalized: {
		ActionFinalize: {next: StatusFinalized},
		ActionCancel:   {err: ErrSpinFinalized},
	},
	StatusCancelled: {
		ActionFinalize: {err: ErrSpinCancelled},
		ActionCancel:   {next: StatusCancelled},
	},
}

// NextStatus 返回对 current 执行 action 之后的状态。
// changed 为 false 表示目标状态已经达成，调用方应按幂等成功处理。
func NextStatus(current Status, action Action) (next Status, changed bool, err error) {
	t, ok := transitions[current][action]
	if !ok {
		return current, false, fmt.Errorf("未知的抽奖状态 %q", current)
	}
	if t.err != nil {
		return current, false, t.err
	}
	return t.next, t.changed, nil
}
