package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// UserSignupsTotal 注册成功次数。
	UserSignupsTotal prometheus.Counter
	// LoginFailuresTotal 登录失败次数（凭证错误）。
	LoginFailuresTotal prometheus.Counter
	// AuthRejectedTotal 鉴权中间件拒绝次数（缺失/无效/已吊销 token）。
	AuthRejectedTotal prometheus.Counter
	// AvatarUploadRejectedTotal 头像上传被拒次数（扩展名或大小）。
	AvatarUploadRejectedTotal prometheus.Counter
	// EmailSendFailuresTotal 邮件发送失败次数（只记录，不影响请求结果）。
	EmailSendFailuresTotal prometheus.Counter
	// RateLimitRejectedTotal 登录限流拒绝次数。
	RateLimitRejectedTotal prometheus.Counter

	initOnce sync.Once
)

// InitMetrics 注册所有 Prometheus 指标。
//
// 可以被重复调用（测试里每个用例都会调），只有第一次生效。
func InitMetrics() {
	initOnce.Do(func() {
		UserSignupsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskboard_user_signups_total",
			Help: "Number of successfully created user accounts.",
		})
		LoginFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskboard_login_failures_total",
			Help: "Number of failed login attempts.",
		})
		AuthRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskboard_auth_rejected_total",
			Help: "Number of requests rejected by the auth middleware.",
		})
		AvatarUploadRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskboard_avatar_upload_rejected_total",
			Help: "Number of avatar uploads rejected before processing.",
		})
		EmailSendFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskboard_email_send_failures_total",
			Help: "Number of notification emails that failed to send.",
		})
		RateLimitRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskboard_ratelimit_rejected_total",
			Help: "Number of requests rejected by the login rate limiter.",
		})

		prometheus.MustRegister(
			UserSignupsTotal,
			LoginFailuresTotal,
			AuthRejectedTotal,
			AvatarUploadRejectedTotal,
			EmailSendFailuresTotal,
			RateLimitRejectedTotal,
		)
	})
}
