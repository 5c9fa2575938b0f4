package profile

// Candidates is a pool of candidate profiles.
type Candidates struct {
	Items []*Candidate
}

func (c *Candidates) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Items)
}

func (c *Candidates) IDs() []string {
	ids := make([]string, 0, c.Len())
	for _, item := range c.Items {
		ids = append(ids, item.ID)
	}
	return ids
}

func (c *Candidates) FindByID(id string) *Candidate {
	for _, item := range c.Items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

// Jobs is a pool of job postings.
type Jobs struct {
	Items []*JobPosting
}

func (j *Jobs) Len() int {
	if j == nil {
		return 0
	}
	return len(j.Items)
}

func (j *Jobs) IDs() []string {
	ids := make([]string, 0, j.Len())
	for _, item := range j.Items {
		ids = append(ids, item.ID)
	}
	return ids
}

func (j *Jobs) FindByID(id string) *JobPosting {
	for _, item := range j.Items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

// Open drops closed postings and returns the IDs removed.
func (j *Jobs) Open() []string {
	var removed []string
	kept := j.Items[:0]
	for _, item := range j.Items {
		if item.Open() {
			kept = append(kept, item)
			continue
		}
		removed = append(removed, item.ID)
	}
	j.Items = kept
	return removed
}
