package email

// Provider sends outbound email. The notification dispatcher uses it to
// reach participants who are not connected to the realtime channel.
type Provider interface {
	Send(email *Email) error
	Validate() error
	Close() error
}
