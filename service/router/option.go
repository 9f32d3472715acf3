package router

// Option is used to customise the router instance.
type Option func(*service)

// WithListener sets the listener invoked after every dispatched call.
func WithListener(l Listener) Option {
	return func(s *service) {
		s.listener = l
	}
}
