package catalog

import (
	"strings"

	"github.com/kartikbazzad/bundoc-core/internal/util"
)

// maxNamespaceLength mirrors the storage-engine record key budget a fully
// qualified "db.collection" (or, for an index, "db.collection$index")
// name must fit within.
const maxNamespaceLength = 255

// Namespace is a fully qualified "database.collection" name.
type Namespace struct {
	Database   string
	Collection string
}

func (ns Namespace) String() string {
	return ns.Database + "." + ns.Collection
}

// IndexNamespace is parentCollection + "$" + indexName (spec.md §3
// IndexDescriptor invariant).
func (ns Namespace) IndexNamespace(indexName string) string {
	return ns.String() + "$" + indexName
}

// ParseNamespace splits "db.collection" into its parts, validating both
// halves per spec.md §4.3 createCollection.
func ParseNamespace(full string) (Namespace, error) {
	dot := strings.IndexByte(full, '.')
	if dot < 0 {
		return Namespace{}, util.New(util.KindInvalidNamespace, "catalog.ParseNamespace", "namespace must contain a '.'")
	}
	db, coll := full[:dot], full[dot+1:]
	ns := Namespace{Database: db, Collection: coll}
	if err := ns.Validate(); err != nil {
		return Namespace{}, err
	}
	return ns, nil
}

// Validate enforces spec.md §4.3's createCollection name rules: non-empty,
// no further dots in the database component, non-blank collection
// component, within the overall length limit.
func (ns Namespace) Validate() error {
	if ns.Database == "" {
		return util.New(util.KindInvalidNamespace, "catalog.Namespace.Validate", "database name must not be empty")
	}
	if strings.ContainsAny(ns.Database, ". $") {
		return util.New(util.KindInvalidNamespace, "catalog.Namespace.Validate", "database name must not contain '.', ' ' or '$'")
	}
	if strings.TrimSpace(ns.Collection) == "" {
		return util.New(util.KindInvalidNamespace, "catalog.Namespace.Validate", "collection name must not be blank")
	}
	if strings.Contains(ns.Collection, "$") {
		return util.New(util.KindInvalidNamespace, "catalog.Namespace.Validate", "collection name must not contain '$'")
	}
	if len(ns.String()) > maxNamespaceLength {
		return util.New(util.KindInvalidNamespace, "catalog.Namespace.Validate", "namespace exceeds length limit")
	}
	return nil
}

// isSystemCollection rejects drops of catalog-critical collections
// (spec.md §4.3 dropCollection: "reject drops of certain system
// collections").
func isSystemCollection(name string) bool {
	return strings.HasPrefix(name, "system.")
}

// dropPendingNamespace derives the collection name of the rename target
// for a two-phase drop (it stays in ns's own database), keyed on the
// operation time so the reaper can recover it later and so concurrent
// drops of the same name never collide.
func dropPendingNamespace(ns Namespace, dropOpTime uint64) string {
	return "system.drop." + itoa(dropOpTime) + "." + ns.Collection
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
