package notifier

// TextNotifier defines a minimal text notification interface.
// Decision summaries and invalidation alerts depend on it without
// importing concrete implementations (e.g. Telegram).
type TextNotifier interface {
	SendText(text string) error
}

