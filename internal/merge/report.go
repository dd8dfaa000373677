package merge

// Tally counts entities of one kind.
type Tally struct {
	Created int `json:"created" yaml:"created"`
	Reused  int `json:"reused" yaml:"reused"`
}

// RenamedComputer records a computer imported under a disambiguated name.
type RenamedComputer struct {
	UUID     string `json:"uuid" yaml:"uuid"`
	Original string `json:"original" yaml:"original"`
	Assigned string `json:"assigned" yaml:"assigned"`
	Suffix   int    `json:"suffix" yaml:"suffix"`
}

// Report is the outcome of a merge.
type Report struct {
	Nodes     Tally `json:"nodes" yaml:"nodes"`
	Links     Tally `json:"links" yaml:"links"`
	Computers Tally `json:"computers" yaml:"computers"`
	Users     Tally `json:"users" yaml:"users"`
	Groups    Tally `json:"groups" yaml:"groups"`

	// GroupMembersAdded counts memberships added to new or existing groups.
	GroupMembersAdded int `json:"group_members_added" yaml:"group_members_added"`

	// ExternalLinks tallies stubs applied because their outside endpoint
	// exists in the target; ExternalLinksSkipped counts the rest.
	ExternalLinks        Tally `json:"external_links" yaml:"external_links"`
	ExternalLinksSkipped int   `json:"external_links_skipped" yaml:"external_links_skipped"`

	// DroppedLinks counts links the reader discarded because they
	// referenced nodes outside the archive.
	DroppedLinks int `json:"dropped_links" yaml:"dropped_links"`

	RenamedComputers []RenamedComputer `json:"renamed_computers" yaml:"renamed_computers"`

	// FilesWritten counts content files copied for newly created nodes.
	FilesWritten int `json:"files_written" yaml:"files_written"`
}
