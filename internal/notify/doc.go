// Package notify delivers outbound license mail. Mailer is the SMTP
// implementation; Dispatcher wraps any notifier into a fire-and-forget
// queue so issuing and renewal never wait on delivery. LogNotifier stands
// in when mail is disabled.
package notify
