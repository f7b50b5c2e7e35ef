// Package artifact defines the artifact-document model (§3.2/§3.3) and the
// mk_update_set diff algorithm (§4.7.1) used by the document-DB writer.
package artifact

// Type is the closed set of artifact kinds (§3.2).
type Type string

const (
	KojiBuild            Type = "koji-build"
	KojiBuildCS          Type = "koji-build-cs"
	CoprBuild            Type = "copr-build"
	BrewBuild            Type = "brew-build"
	RedhatModule         Type = "redhat-module"
	FedoraModule         Type = "fedora-module"
	ProductmdCompose     Type = "productmd-compose"
	RedhatContainerImage Type = "redhat-container-image"
	DistGitPR            Type = "dist-git-pr"
)

// ValidTypes returns every member of the closed artifact-type set.
func ValidTypes() []Type {
	return []Type{
		KojiBuild, KojiBuildCS, CoprBuild, BrewBuild, RedhatModule,
		FedoraModule, ProductmdCompose, RedhatContainerImage, DistGitPR,
	}
}

// Valid reports whether t is a member of the closed set.
func (t Type) Valid() bool {
	for _, v := range ValidTypes() {
		if v == t {
			return true
		}
	}
	return false
}

// Identity is the (artifact_type, artifact_id) pair every payload maps to.
type Identity struct {
	Type Type
	ID   string
}
