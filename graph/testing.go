package graph

import "github.com/poiesic/lexgraph/core"

// SampleProvisions returns a small two-act corpus used by tests across packages.
func SampleProvisions() []*core.Provision {
	ref := func(target, snippet string) core.Reference {
		return core.Reference{Target: target, Snippet: snippet}
	}
	return []*core.Provision{
		{RefID: "ITAA1997:Act:ITAA1997", Act: "ITAA1997", Type: core.NodeTypeAct, LocalID: "ITAA1997",
			Title: "Income Tax Assessment Act 1997"},
		{RefID: "ITAA1997:Section:4-1", Act: "ITAA1997", Type: core.NodeTypeSection, LocalID: "4-1",
			Title: "Who must pay income tax", ParentID: "ITAA1997_Act_ITAA1997", SiblingOrder: 0,
			Content: "Income tax is payable by each individual and company. The medicare levy is imposed on taxable income by a separate Act."},
		{RefID: "ITAA1997:Division:6", Act: "ITAA1997", Type: core.NodeTypeDivision, LocalID: "6",
			Title: "Assessable income and exempt income", ParentID: "ITAA1997_Act_ITAA1997", SiblingOrder: 1},
		{RefID: "ITAA1997:Section:6-1", Act: "ITAA1997", Type: core.NodeTypeSection, LocalID: "6-1",
			Title: "Map of assessable income", ParentID: "ITAA1997_Division_6", SiblingOrder: 1,
			Content: "Assessable income consists of ordinary income and statutory income. See section 6-5 and section 6-10.",
			References: []core.Reference{
				ref("ITAA1997:Section:6-5", "ordinary income under section 6-5"),
				ref("ITAA1997:Section:6-10", "statutory income under section 6-10"),
			},
			TermsUsed: []string{"assessable income", "ordinary income", "statutory income"}},
		{RefID: "ITAA1997:Section:6-5", Act: "ITAA1997", Type: core.NodeTypeSection, LocalID: "6-5",
			Title: "Income according to ordinary concepts (ordinary income)", ParentID: "ITAA1997_Division_6", SiblingOrder: 2,
			Content: "Your assessable income includes income according to ordinary concepts, which is called ordinary income. " +
				"If you are an Australian resident, your assessable income includes the ordinary income you derived directly or indirectly from all sources.",
			References: []core.Reference{
				ref("ITAA1997:Section:6-10", "see section 6-10"),
				ref("ITAA1997:Section:995-1", "defined in section 995-1"),
				ref("ITAA1997:Section:6-10", "duplicate mention of 6-10"),
				ref("ITAA1997:Section:6-5", "self reference"),
				ref("ITAA1997:Section:999-9", "missing target"),
			},
			TermsUsed: []string{"ordinary income", "Australian resident", "assessable income"}},
		{RefID: "ITAA1997:Section:6-10", Act: "ITAA1997", Type: core.NodeTypeSection, LocalID: "6-10",
			Title: "Other assessable income (statutory income)", ParentID: "ITAA1997_Division_6", SiblingOrder: 3,
			Content: "Your assessable income also includes some amounts that are not ordinary income. Amounts that are not ordinary income are statutory income.",
			References: []core.Reference{ref("ITAA1997:Section:6-5", "ordinary income in section 6-5")},
			TermsUsed:  []string{"statutory income", "ordinary income"}},
		{RefID: "ITAA1997:Division:8", Act: "ITAA1997", Type: core.NodeTypeDivision, LocalID: "8",
			Title: "Deductions", ParentID: "ITAA1997_Act_ITAA1997", SiblingOrder: 2},
		{RefID: "ITAA1997:Section:8-1", Act: "ITAA1997", Type: core.NodeTypeSection, LocalID: "8-1",
			Title: "General deductions", ParentID: "ITAA1997_Division_8", SiblingOrder: 1,
			Content: "You can deduct from your assessable income any loss or outgoing to the extent that it is incurred in gaining or producing your assessable income.",
			References: []core.Reference{ref("ITAA1997:Section:6-5", "assessable income under section 6-5")},
			TermsUsed:  []string{"assessable income"}},
		{RefID: "ITAA1997:Section:995-1", Act: "ITAA1997", Type: core.NodeTypeSection, LocalID: "995-1",
			Title: "Definitions", ParentID: "ITAA1997_Act_ITAA1997", SiblingOrder: 3,
			Content: "In this Act, except so far as the contrary intention appears, the following terms have the meanings given."},
		{RefID: "ITAA1997:Definition:assessable_income", Act: "ITAA1997", Type: core.NodeTypeDefinition, LocalID: "assessable_income",
			Title: "assessable income", ParentID: "ITAA1997_Section_995-1", SiblingOrder: 1,
			Content: "assessable income has the meaning given by section 6-1.",
			References: []core.Reference{ref("ITAA1997:Section:6-1", "meaning given by section 6-1")}},
		{RefID: "ITAA1997:Definition:ordinary_income", Act: "ITAA1997", Type: core.NodeTypeDefinition, LocalID: "ordinary_income",
			Title: "ordinary income", ParentID: "ITAA1997_Section_995-1", SiblingOrder: 2,
			Content: "ordinary income has the meaning given by section 6-5.",
			References: []core.Reference{ref("ITAA1997:Section:6-5", "meaning given by section 6-5")}},
		{RefID: "ITAA1997:Definition:statutory_income", Act: "ITAA1997", Type: core.NodeTypeDefinition, LocalID: "statutory_income",
			Title: "statutory income", ParentID: "ITAA1997_Section_995-1", SiblingOrder: 3,
			Content: "statutory income has the meaning given by section 6-10.",
			References: []core.Reference{ref("ITAA1997:Section:6-10", "meaning given by section 6-10")}},
		{RefID: "ITAA1997:Definition:australian_resident", Act: "ITAA1997", Type: core.NodeTypeDefinition, LocalID: "australian_resident",
			Title: "Australian resident", ParentID: "ITAA1997_Section_995-1", SiblingOrder: 4,
			Content: "Australian resident means a person who is a resident of Australia for the purposes of the Income Tax Assessment Act 1936."},
		{RefID: "ITAA1936:Act:ITAA1936", Act: "ITAA1936", Type: core.NodeTypeAct, LocalID: "ITAA1936",
			Title: "Income Tax Assessment Act 1936"},
		{RefID: "ITAA1936:Section:23", Act: "ITAA1936", Type: core.NodeTypeSection, LocalID: "23",
			Title: "Exempt income of residents", ParentID: "ITAA1936_Act_ITAA1936", SiblingOrder: 1,
			Content: "The income of a resident derived from sources outside Australia is exempt from income tax where foreign tax has been paid.",
			References: []core.Reference{ref("ITAA1997:Section:6-5", "ordinary income as defined")},
			TermsUsed:  []string{"Australian resident"}},
		{RefID: "ITAA1936:Section:251S", Act: "ITAA1936", Type: core.NodeTypeSection, LocalID: "251S",
			Title: "Medicare levy surcharge", ParentID: "ITAA1936_Act_ITAA1936", SiblingOrder: 2,
			Content: "A medicare levy surcharge is payable by a person who does not hold private patient hospital cover."},
	}
}
