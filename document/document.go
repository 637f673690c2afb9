// Package document is the page-addressable view of a PDF used by every
// operation. It loads bytes into a raw object graph, exposes pages with
// their size and rotation, copies pages between documents, embeds fonts and
// images, and serializes the result.
package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfengine/filters"
	"github.com/wudi/pdfengine/ir/raw"
	"github.com/wudi/pdfengine/observability"
	"github.com/wudi/pdfengine/parser"
	"github.com/wudi/pdfengine/recovery"
)

// ErrPageRange is wrapped by every error reporting a bad page index.
var ErrPageRange = errors.New("page index out of range")

// ErrForeignPage is returned when a page of one document is added to another.
var ErrForeignPage = errors.New("page belongs to another document")

// Letter and A4 page sizes in points.
var (
	Letter = [2]float64{612, 792}
	A4     = [2]float64{595.28, 841.89}
)

const maxPageTreeDepth = 64

type LoadOptions struct {
	// Lenient repairs damaged cross-reference data and skips unreadable
	// objects instead of failing.
	Lenient bool
	Filters *filters.Pipeline
	Logger  observability.Logger
}

// Document owns a raw object graph and the ordered page list derived from it.
// It is not safe for concurrent use.
type Document struct {
	raw      *raw.Document
	catalog  *raw.DictObj
	pagesRef raw.RefObj
	pages    []*Page
	filters  *filters.Pipeline
	logger   observability.Logger

	fonts   map[string]*Font
	gstates map[string]*GState
	nextRes int
}

// Load parses data into a Document. Inherited page attributes are copied
// onto each page and the page tree is flattened to a single level.
func Load(ctx context.Context, data []byte, opts LoadOptions) (*Document, error) {
	logger := observability.OrNop(opts.Logger)
	var strategy recovery.Strategy = recovery.NewStrictStrategy()
	if opts.Lenient {
		strategy = recovery.NewLenientStrategy(logger)
	}
	pipeline := opts.Filters
	if pipeline == nil {
		pipeline = filters.Standard()
	}
	p := parser.NewDocumentParser(parser.Config{Recovery: strategy, Filters: pipeline, Logger: logger})
	rd, err := p.ParseBytes(ctx, data)
	if err != nil {
		return nil, err
	}
	d := newDocument(rd, pipeline, logger)
	if err := d.indexPages(); err != nil {
		return nil, err
	}
	return d, nil
}

// NewEmpty returns a document with a catalog, an empty page tree and no pages.
func NewEmpty() *Document {
	rd := raw.NewDocument()
	pages := raw.Dict()
	pages.Set("Type", raw.NameLiteral("Pages"))
	pages.Set("Kids", raw.NewArray())
	pages.Set("Count", raw.NumberInt(0))
	pagesRef := rd.Add(pages)
	catalog := raw.Dict()
	catalog.Set("Type", raw.NameLiteral("Catalog"))
	catalog.Set("Pages", pagesRef)
	rd.Trailer.Set("Root", rd.Add(catalog))

	d := newDocument(rd, filters.Standard(), observability.NopLogger{})
	d.catalog = catalog
	d.pagesRef = pagesRef
	return d
}

func newDocument(rd *raw.Document, pipeline *filters.Pipeline, logger observability.Logger) *Document {
	return &Document{
		raw:     rd,
		filters: pipeline,
		logger:  logger,
		fonts:   make(map[string]*Font),
		gstates: make(map[string]*GState),
	}
}

// Raw exposes the underlying object graph. Changes to the page tree made
// through it are not reflected in the page list.
func (d *Document) Raw() *raw.Document { return d.raw }

// Version returns the header version of the loaded file.
func (d *Document) Version() string { return d.raw.Version }

func (d *Document) Filters() *filters.Pipeline { return d.filters }

func (d *Document) PageCount() int { return len(d.pages) }

// Page returns the page at 0-based index i.
func (d *Document) Page(i int) (*Page, error) {
	if i < 0 || i >= len(d.pages) {
		return nil, fmt.Errorf("%w: %d not in [0,%d)", ErrPageRange, i, len(d.pages))
	}
	return d.pages[i], nil
}

// Pages returns the pages in document order.
func (d *Document) Pages() []*Page {
	return append([]*Page(nil), d.pages...)
}

// AddPage appends p, which must have been created by or copied into d.
func (d *Document) AddPage(p *Page) error {
	return d.InsertPage(len(d.pages), p)
}

// InsertPage places p before index i; i == PageCount appends.
func (d *Document) InsertPage(i int, p *Page) error {
	if p.doc != d {
		return ErrForeignPage
	}
	if i < 0 || i > len(d.pages) {
		return fmt.Errorf("%w: insert at %d in [0,%d]", ErrPageRange, i, len(d.pages))
	}
	for _, existing := range d.pages {
		if existing == p {
			return fmt.Errorf("page %s is already in the document", p.ref.R)
		}
	}
	p.dict.Set("Parent", d.pagesRef)
	d.pages = append(d.pages, nil)
	copy(d.pages[i+1:], d.pages[i:])
	d.pages[i] = p
	return nil
}

// RemovePage detaches the page at i and deletes its page object. Resources
// only it used are dropped on save.
func (d *Document) RemovePage(i int) error {
	if i < 0 || i >= len(d.pages) {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrPageRange, i, len(d.pages))
	}
	p := d.pages[i]
	d.pages = append(d.pages[:i], d.pages[i+1:]...)
	delete(d.raw.Objects, p.ref.R)
	return nil
}

// NewPage creates a blank page of the given size and appends it.
func (d *Document) NewPage(width, height float64) *Page {
	dict := raw.Dict()
	dict.Set("Type", raw.NameLiteral("Page"))
	dict.Set("MediaBox", raw.Numbers(0, 0, width, height))
	dict.Set("Resources", raw.Dict())
	p := &Page{doc: d, ref: d.raw.Add(dict), dict: dict}
	_ = d.AddPage(p)
	return p
}

// syncPageTree rewrites the root page node from the page list.
func (d *Document) syncPageTree() {
	pages, ok := d.raw.ResolveDict(d.pagesRef)
	if !ok {
		pages = raw.Dict()
		pages.Set("Type", raw.NameLiteral("Pages"))
		d.raw.Objects[d.pagesRef.R] = pages
	}
	kids := raw.NewArray()
	for _, p := range d.pages {
		kids.Append(p.ref)
		p.dict.Set("Parent", d.pagesRef)
	}
	pages.Set("Kids", kids)
	pages.Set("Count", raw.NumberInt(int64(len(d.pages))))
	pages.Delete("Parent")
}

var inheritable = []string{"Resources", "MediaBox", "CropBox", "Rotate"}

// indexPages walks the page tree, pushes inherited attributes down to the
// leaves and replaces intermediate nodes with a single root.
func (d *Document) indexPages() error {
	catalog, ok := d.raw.Catalog()
	if !ok {
		return parser.ErrNoCatalog
	}
	d.catalog = catalog
	root, ok := catalog.Get("Pages")
	rootRef, isRef := root.(raw.RefObj)
	if !ok || !isRef {
		pages := raw.Dict()
		pages.Set("Type", raw.NameLiteral("Pages"))
		if direct, ok := root.(*raw.DictObj); ok {
			pages = direct
		}
		rootRef = d.raw.Add(pages)
		catalog.Set("Pages", rootRef)
	}
	d.pagesRef = rootRef

	seen := make(map[raw.ObjectRef]bool)
	var intermediate []raw.ObjectRef
	var walk func(ref raw.RefObj, inherited map[string]raw.Object, depth int) error
	walk = func(ref raw.RefObj, inherited map[string]raw.Object, depth int) error {
		if depth > maxPageTreeDepth {
			return errors.New("page tree too deep")
		}
		if seen[ref.R] {
			return nil
		}
		seen[ref.R] = true
		node, ok := d.raw.ResolveDict(ref)
		if !ok {
			return nil
		}
		typ, _ := node.Name("Type")
		kidsObj, hasKids := d.raw.ResolveArray(node.KV["Kids"])
		if typ == "Page" || (!hasKids && typ != "Pages") {
			for k, v := range inherited {
				if _, own := node.Get(k); !own {
					node.Set(k, raw.Clone(v))
				}
			}
			if _, ok := node.Get("MediaBox"); !ok {
				node.Set("MediaBox", raw.Numbers(0, 0, Letter[0], Letter[1]))
			}
			node.Set("Type", raw.NameLiteral("Page"))
			d.pages = append(d.pages, &Page{doc: d, ref: ref, dict: node})
			return nil
		}
		next := make(map[string]raw.Object, len(inherited))
		for k, v := range inherited {
			next[k] = v
		}
		for _, k := range inheritable {
			if v, ok := node.Get(k); ok {
				next[k] = v
			}
		}
		if ref != rootRef {
			intermediate = append(intermediate, ref.R)
		}
		if !hasKids {
			return nil
		}
		for _, kid := range kidsObj.Items {
			kref, ok := kid.(raw.RefObj)
			if !ok {
				continue
			}
			if err := walk(kref, next, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(rootRef, nil, 0); err != nil {
		return err
	}
	if root, ok := d.raw.ResolveDict(rootRef); ok {
		for _, k := range inheritable {
			root.Delete(k)
		}
	}
	for _, ref := range intermediate {
		delete(d.raw.Objects, ref)
	}
	d.syncPageTree()
	return nil
}
