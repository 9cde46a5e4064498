// Package core provides the main EverMem client and the memory pipeline.
package core

// WriteOption is a function type for configuring Write operations.
//
// Options are applied using the functional options pattern, allowing
// flexible configuration without requiring all parameters.
type WriteOption func(*WriteOptions)

// WriteOptions contains configuration options for Write operations.
type WriteOptions struct {
	// UserID scopes every extracted memory and every neighbor lookup to
	// this user. Empty means unscoped.
	UserID string

	// Mode selects which conversation side is mined for memories.
	// Default: ModeUser.
	Mode ExtractionMode
}

// WithUserID sets the user scope for Write operations.
//
// Example:
//
//	memories, _ := client.Write(ctx, turns, userMsg, assistantMsg,
//	    core.WithUserID("user_001"))
func WithUserID(userID string) WriteOption {
	return func(opts *WriteOptions) {
		opts.UserID = userID
	}
}

// WithMode sets the extraction mode for Write operations.
//
// Example:
//
//	memories, _ := client.Write(ctx, turns, userMsg, assistantMsg,
//	    core.WithMode(core.ModeBoth))
func WithMode(mode ExtractionMode) WriteOption {
	return func(opts *WriteOptions) {
		opts.Mode = mode
	}
}

// RetrieveOption is a function type for configuring Retrieve operations.
type RetrieveOption func(*RetrieveOptions)

// RetrieveOptions contains configuration options for Retrieve operations.
type RetrieveOptions struct {
	// UserID restricts results to memories owned by this user.
	UserID string

	// Filter is a conjunction of equality predicates over payload fields.
	// The "type" key is accepted but ignored by the vector index.
	Filter map[string]string
}

// WithUserIDForRetrieve sets the user scope for Retrieve operations.
//
// Example:
//
//	results, _ := client.Retrieve(ctx, "tea", 10,
//	    core.WithUserIDForRetrieve("user_001"))
func WithUserIDForRetrieve(userID string) RetrieveOption {
	return func(opts *RetrieveOptions) {
		opts.UserID = userID
	}
}

// WithFilter sets payload equality filters for Retrieve operations.
//
// Example:
//
//	results, _ := client.Retrieve(ctx, "tea", 10,
//	    core.WithFilter(map[string]string{"source": "user_message"}))
func WithFilter(filter map[string]string) RetrieveOption {
	return func(opts *RetrieveOptions) {
		opts.Filter = filter
	}
}

// applyWriteOptions applies Write options to create WriteOptions.
func applyWriteOptions(opts []WriteOption) *WriteOptions {
	options := &WriteOptions{
		Mode: ModeUser,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// applyRetrieveOptions applies Retrieve options to create RetrieveOptions.
func applyRetrieveOptions(opts []RetrieveOption) *RetrieveOptions {
	options := &RetrieveOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// searchFilter merges the user scope into the payload filter, copying the
// caller's map so it is never mutated.
func (o *RetrieveOptions) searchFilter() map[string]string {
	if o.UserID == "" && len(o.Filter) == 0 {
		return nil
	}
	filter := make(map[string]string, len(o.Filter)+1)
	for k, v := range o.Filter {
		filter[k] = v
	}
	if o.UserID != "" {
		filter["user_id"] = o.UserID
	}
	return filter
}
