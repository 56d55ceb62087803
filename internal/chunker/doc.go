// Package chunker divides source files into keyed, hierarchical chunks for embedding.
//
// # Basic Usage
//
//	ex := chunker.New(parser.DefaultRegistry())
//	chunks, err := ex.ExtractFile(ctx, "pkg/user.py", content, chunker.ModeChunks)
//	if err != nil {
//	    return err
//	}
//
//	for _, c := range chunks {
//	    fmt.Printf("%s (parent %s)\n", c.Key, c.Parent())
//	}
//
// # Modes
//
// ModeFiles produces one "file" chunk per file. ModeChunks asks the parser
// registered for the file's extension; files without a parser, files the
// parser fails on and files with no recognizable constructs still produce the
// single whole-file chunk.
//
// # Keys
//
// A chunk key is {path}:{type}:{name}:{row} with a 0-based start row, e.g.
// a.py:method:Foo.bar:3. When two chunks of a file would share a key the
// later one gets an @{start_byte} suffix. Parent links are keys as well.
package chunker
