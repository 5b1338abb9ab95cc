package health

// State 定义了系统健康状态的枚举类型
type State int

const (
	StateHealthy State = iota
	// StateDegraded 数据库可用但Redis不可用：限流与实时事件降级，抽奖流程不受影响
	StateDegraded
	// StateUnhealthy 数据库不可用
	StateUnhealthy
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "ok"
	case StateDegraded:
		return "degraded"
	default:
		return "unhealthy"
	}
}

// Report 是一次健康检查的结果
type Report struct {
	Status   string `json:"status"`
	Database bool   `json:"database"`
	Redis    bool   `json:"redis"`
	state    State
}

func (r Report) State() State {
	return r.state
}

func assess(dbOK, redisOK bool) State {
	switch {
	case !dbOK:
		return StateUnhealthy
	case !redisOK:
		return StateDegraded
	default:
		return StateHealthy
	}
}
