package notify

// Mailer 定义账号生命周期邮件通知接口。
//
// 发送失败不影响请求结果：调用方在 goroutine 里调用并只记录日志。
type Mailer interface {
	// SendWelcome 在账号创建后发送欢迎邮件。
	SendWelcome(toEmail string, name string) error
	// SendCancellation 在账号注销后发送告别邮件。
	SendCancellation(toEmail string, name string) error
}
