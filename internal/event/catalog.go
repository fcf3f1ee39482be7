package event

// Names of types the parsers refer to directly.
const (
	NameUnifiedConcurrentCycle = "Concurrent Cycle"
	NameG1Eden                 = "Eden"
	NameG1Survivors            = "Survivors"
	NameMetaspace              = "Metaspace"
	NameJ9Nursery              = "J9 nursery"
	NameJ9Tenured              = "J9 tenure"
	NameUnifiedYoungDetail     = "Young"
	NameUnifiedOldDetail       = "Old"
)

func pause(name string, gen Generation, p Pattern) TypeDef {
	return TypeDef{Name: name, Generation: gen, Concurrency: Serial, Pattern: p}
}

func detail(name string, gen Generation) TypeDef {
	return TypeDef{Name: name, Generation: gen, Concurrency: Serial, Pattern: PatternMemory}
}

func concurrent(name string, role PhaseRole, key string, p Pattern) TypeDef {
	return TypeDef{Name: name, Generation: GenTenured, Concurrency: Concurrent, Pattern: p, Role: role, PhaseKey: key}
}

// startEnd registers the "<name>-start" and "<name>" marker pair of one phase.
func startEnd(name string) []TypeDef {
	return []TypeDef{
		concurrent(name+"-start", RoleStart, name, PatternMarker),
		concurrent(name, RoleEnd, name, PatternPause),
	}
}

func standardDefs() []TypeDef {
	defs := []TypeDef{
		// HotSpot serial and parallel collectors
		pause("GC", GenYoung, PatternMemoryPause),
		pause("GC--", GenYoung, PatternMemoryPause),
		pause("Full GC", GenAll, PatternMemoryPause),
		pause("Full GC--", GenAll, PatternMemoryPause),
		pause("Full GC (System)", GenAll, PatternMemoryPause),
		pause("Full GC (System.gc())", GenAll, PatternMemoryPause),
		pause("GC (Allocation Failure)", GenYoung, PatternMemoryPause),
		pause("GC (System.gc())", GenYoung, PatternMemoryPause),

		detail("DefNew", GenYoung),
		detail("ParNew", GenYoung),
		detail("PSYoungGen", GenYoung),
		detail("ASParNew", GenYoung),
		detail("Tenured", GenTenured),
		detail("PSOldGen", GenTenured),
		detail("ParOldGen", GenTenured),
		detail("CMS", GenTenured),
		detail("ASCMS", GenTenured),
		detail("Perm", GenPerm),
		detail("PSPermGen", GenPerm),
		detail("CMS Perm", GenPerm),
		detail(NameMetaspace, GenPerm),

		// CMS
		pause("CMS-initial-mark", GenTenured, PatternMemoryPause),
		pause("CMS-remark", GenTenured, PatternMemoryPause),
		pause("YG occupancy", GenYoung, PatternMemory),
		pause("Rescan (parallel)", GenTenured, PatternPause),
		pause("Rescan (non-parallel)", GenTenured, PatternPause),
		pause("grey object rescan", GenTenured, PatternPause),
		pause("root rescan", GenTenured, PatternPause),
		pause("visit unhandled CLDs", GenTenured, PatternPause),
		pause("dirty klass scan", GenTenured, PatternPause),
		pause("weak refs processing", GenTenured, PatternPause),
		pause("class unloading", GenTenured, PatternPause),
		pause("scrub symbol table", GenTenured, PatternPause),
		pause("scrub string table", GenTenured, PatternPause),
		pause("scrub symbol & string tables", GenTenured, PatternPause),
	}
	for _, phase := range []string{
		"CMS-concurrent-mark",
		"CMS-concurrent-preclean",
		"CMS-concurrent-abortable-preclean",
		"CMS-concurrent-sweep",
		"CMS-concurrent-reset",
	} {
		defs = append(defs, startEnd(phase)...)
	}

	// G1 (pre unified logging)
	defs = append(defs,
		pause("GC pause (young)", GenYoung, PatternMemoryPause),
		pause("GC pause (mixed)", GenYoung, PatternMemoryPause),
		pause("GC pause (young) (initial-mark)", GenYoung, PatternMemoryPause),
		pause("GC pause (G1 Evacuation Pause) (young)", GenYoung, PatternMemoryPause),
		pause("GC pause (G1 Evacuation Pause) (mixed)", GenYoung, PatternMemoryPause),
		pause("GC pause (G1 Humongous Allocation) (young)", GenYoung, PatternMemoryPause),
		pause("GC pause (Metadata GC Threshold) (young) (initial-mark)", GenYoung, PatternMemoryPause),
		pause("GC remark", GenTenured, PatternPause),
		pause("GC ref-proc", GenTenured, PatternPause),
		pause("Finalize Marking", GenTenured, PatternPause),
		pause("Unloading", GenTenured, PatternPause),
		pause("System Dictionary Unloading", GenTenured, PatternPause),
		pause("Parallel Unloading", GenTenured, PatternPause),
		pause("Deallocate Metadata", GenTenured, PatternPause),
		pause("GC cleanup", GenTenured, PatternMemoryPause),
		detail(NameG1Eden, GenYoung),
		detail(NameG1Survivors, GenYoung),
	)
	for _, phase := range []string{
		"GC concurrent-root-region-scan",
		"GC concurrent-mark",
		"GC concurrent-cleanup",
	} {
		defs = append(defs,
			concurrent(phase+"-start", RoleStart, phase, PatternMarker),
			concurrent(phase+"-end", RoleEnd, phase, PatternPause),
		)
	}
	defs = append(defs,
		concurrent("GC concurrent-mark-abort", RoleAbort, "GC concurrent-mark", PatternMarker),
		concurrent("GC concurrent-mark-reset-for-overflow", RoleInstant, "", PatternMarker),
		concurrent("GC concurrent-string-deduplication", RoleInstant, "", PatternMemoryPause),
	)

	// Shenandoah (pre unified logging)
	defs = append(defs,
		pause("Pause Init Mark", GenYoung, PatternPause),
		pause("Pause Final Mark", GenYoung, PatternPause),
		pause("Pause Init Update Refs", GenYoung, PatternPause),
		pause("Pause Final Update Refs", GenYoung, PatternPause),
		pause("Pause Final Evac", GenYoung, PatternPause),
		pause("Pause Degenerated GC", GenAll, PatternMemoryPause),
		pause("Pause Full", GenAll, PatternMemoryPause),
	)
	for _, name := range []string{
		"Concurrent marking",
		"Concurrent evacuation",
		"Concurrent update references",
		"Concurrent cleanup",
		"Concurrent reset bitmaps",
		"Concurrent precleaning",
		"Concurrent reset",
		"Concurrent uncommit",
	} {
		defs = append(defs, concurrent(name, RoleInstant, "", PatternMemoryPause))
	}

	// Unified logging (JDK 9 and later). Pause Full is shared with Shenandoah.
	defs = append(defs,
		pause("Pause Young", GenYoung, PatternMemoryPause),
		pause("Pause Young (Normal)", GenYoung, PatternMemoryPause),
		pause("Pause Young (Concurrent Start)", GenYoung, PatternMemoryPause),
		pause("Pause Young (Prepare Mixed)", GenYoung, PatternMemoryPause),
		pause("Pause Young (Mixed)", GenYoung, PatternMemoryPause),
		pause("Pause Mixed", GenYoung, PatternMemoryPause),
		pause("Pause Initial Mark", GenYoung, PatternMemoryPause),
		pause("Pause Remark", GenTenured, PatternMemoryPause),
		pause("Pause Cleanup", GenTenured, PatternMemoryPause),
		pause("Pause Mark Start", GenYoung, PatternPause),
		pause("Pause Mark End", GenYoung, PatternPause),
		pause("Pause Relocate Start", GenYoung, PatternPause),
		pause("Pause Init Mark (unload classes)", GenYoung, PatternPause),
		pause("Pause Final Mark (unload classes)", GenYoung, PatternPause),
		detail(NameUnifiedYoungDetail, GenYoung),
		detail(NameUnifiedOldDetail, GenTenured),
		detail("Humongous", GenTenured),
		detail("Archive", GenTenured),
	)
	for _, name := range []string{
		NameUnifiedConcurrentCycle,
		"Concurrent Mark",
		"Concurrent Mark From Roots",
		"Concurrent Scan Root Regions",
		"Concurrent Preclean",
		"Concurrent Abortable Preclean",
		"Concurrent Sweep",
		"Concurrent Reset",
		"Concurrent Rebuild Remembered Sets",
		"Concurrent Cleanup for Next Mark",
		"Concurrent Clear Claimed Marks",
		"Concurrent Complete Cleanup",
		"Concurrent Mark Cycle",
		"Concurrent Undo Cycle",
	} {
		defs = append(defs, concurrent(name, RolePaired, "", PatternPause))
	}
	defs = append(defs,
		concurrent("Concurrent Mark Abort", RoleAbort, "Concurrent Mark", PatternMarker),
		// ZGC cycle summary; its pauses are logged separately
		concurrent("Garbage Collection", RoleInstant, "", PatternMemory),
	)

	// JRockit
	defs = append(defs,
		pause("JRockit GC", GenAll, PatternMemoryPause),
		pause("JRockit nursery GC", GenYoung, PatternMemoryPause),
		pause("JRockit parallel nursery GC", GenYoung, PatternMemoryPause),
		pause("JRockit YC", GenYoung, PatternMemoryPause),
		pause("JRockit OC", GenAll, PatternMemoryPause),
	)

	// IBM J9 verbose XML
	defs = append(defs,
		pause("J9 scavenge", GenYoung, PatternMemoryPause),
		pause("J9 global", GenAll, PatternMemoryPause),
		pause("J9 af nursery", GenYoung, PatternMemoryPause),
		pause("J9 af tenured", GenAll, PatternMemoryPause),
		pause("J9 sys", GenAll, PatternMemoryPause),
		pause("J9 concurrent collection", GenAll, PatternMemoryPause),
		detail(NameJ9Nursery, GenYoung),
		detail(NameJ9Tenured, GenTenured),
	)
	return defs
}

// StandardTypes builds a fresh table holding every type the bundled dialects
// produce.
func StandardTypes() *TypeTable {
	t, err := NewTypeTable(standardDefs())
	if err != nil {
		// the bundled catalog is static
		panic(err)
	}
	return t
}
