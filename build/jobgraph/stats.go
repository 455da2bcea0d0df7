// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package jobgraph

// Stats keeps statistics about the build, such as the number of executed or skipped jobs.
type Stats struct {
	Total    int // jobs created
	Done     int // jobs finished, including skipped and failed
	Executed int // jobs whose operation ran successfully
	Skipped  int // jobs that were already up to date
	Fail     int // failed jobs, including jobs whose dependency failed
}

func (s *Stats) update(j *Job, to State) {
	switch to {
	case UpToDate:
		s.Done++
		if j.built {
			s.Executed++
		} else {
			s.Skipped++
		}
	case Failed:
		s.Done++
		s.Fail++
	}
}
