// Package types provides shared type definitions for kaze.
//
// # Chunks
//
// A Chunk is the unit of embedding and retrieval. Its key has the form
//
//	{relative_path}:{type}:{name}:{start_row}
//
// where start_row is 0-based, so the whole-file chunk of a.py is
// "a.py:file:a.py:0" and a method bar of class Foo starting on line 12 is
// "a.py:method:Foo.bar:11".
//
// Chunks form a forest within a file. A child refers to its parent by key
// (ParentKey); children are never stored on the parent and are found by
// reverse lookup:
//
//	if err := types.ValidateHierarchy(chunks); err != nil {
//	    return err // ErrIntegrity or ErrDuplicateKey
//	}
//
// # Errors
//
// All layers share one error taxonomy (ErrStoreBusy, ErrStoreUnavailable,
// ErrSchemaMismatch, ErrDimensionMismatch, ErrParseFailure,
// ErrProviderFailure, ErrNotFound, ErrIntegrity). Errors are wrapped with
// fmt.Errorf("...: %w") and classified with errors.Is.
package types
