package graph

import (
	"github.com/rackbay/rackbay/internal/errors"
	"github.com/rackbay/rackbay/internal/event"
	"github.com/rackbay/rackbay/internal/plugin"
)

// External group ids. Plugin nodes are numbered after these.
const (
	GroupAudioIn  uint32 = 1
	GroupAudioOut uint32 = 2
	GroupCVIn     uint32 = 3
	GroupCVOut    uint32 = 4
	GroupMidiIn   uint32 = 5
	GroupMidiOut  uint32 = 6

	firstPluginGroup uint32 = 16
)

// Connection is one directed edge between two ports.
type Connection struct {
	ID       uint32
	SrcGroup uint32
	SrcPort  uint32
	DstGroup uint32
	DstPort  uint32
}

// PortInfo describes one port for a topology snapshot.
type PortInfo struct {
	Index  uint32
	Name   string
	IsCV   bool
	IsMidi bool
	Input  bool
}

// NodeInfo describes one group for a topology snapshot.
type NodeInfo struct {
	Group uint32
	Name  string
	Ports []PortInfo
}

// node binds a plugin to its output scratch.
type node struct {
	group    uint32
	pluginID uint32

	audioOut [][]float32
	cvOut    [][]float32
	audioIn  [][]float32
	cvIn     [][]float32
}

// Patchbay is the arbitrary-topology graph: explicit nodes, directional
// connections, dense group identifiers, CV support. Cycles are rejected at
// connect time; connection ids come from a counter and are never reused.
type Patchbay struct {
	extAudioIns  uint32
	extAudioOuts uint32
	extCVIns     uint32
	extCVOuts    uint32

	bufferSize uint32

	nodes       map[uint32]*node // keyed by group id
	order       []uint32         // cached topological order of plugin groups
	connections map[uint32]Connection
	nextGroup   uint32
	nextConn    uint32
}

// NewPatchbay builds an empty graph with the given external topology.
func NewPatchbay(bufferSize, audioIns, audioOuts, cvIns, cvOuts uint32) *Patchbay {
	return &Patchbay{
		extAudioIns:  audioIns,
		extAudioOuts: audioOuts,
		extCVIns:     cvIns,
		extCVOuts:    cvOuts,
		bufferSize:   bufferSize,
		nodes:        make(map[uint32]*node),
		connections:  make(map[uint32]Connection),
		nextGroup:    firstPluginGroup,
		nextConn:     1,
	}
}

func (pb *Patchbay) BufferSizeChanged(newSize uint32) {
	pb.bufferSize = newSize
	for _, n := range pb.nodes {
		pb.sizeNode(n)
	}
}

func makeScratch(n, frames uint32) [][]float32 {
	bufs := make([][]float32, n)
	for i := range bufs {
		bufs[i] = make([]float32, frames)
	}
	return bufs
}

func (pb *Patchbay) sizeNode(n *node) {
	// The plugin's counts are read through the engine's table at process
	// time; scratch is sized generously from the counts seen at add time.
	n.audioIn = resizeScratch(n.audioIn, pb.bufferSize)
	n.audioOut = resizeScratch(n.audioOut, pb.bufferSize)
	n.cvIn = resizeScratch(n.cvIn, pb.bufferSize)
	n.cvOut = resizeScratch(n.cvOut, pb.bufferSize)
}

func resizeScratch(bufs [][]float32, frames uint32) [][]float32 {
	for i := range bufs {
		bufs[i] = make([]float32, frames)
	}
	return bufs
}

// AddNode registers a plugin as a graph node and returns its group id.
func (pb *Patchbay) AddNode(p plugin.Handle) uint32 {
	counts := p.PortCounts()
	n := &node{
		group:    pb.nextGroup,
		pluginID: p.ID(),
		audioIn:  makeScratch(counts.AudioIn, pb.bufferSize),
		audioOut: makeScratch(counts.AudioOut, pb.bufferSize),
		cvIn:     makeScratch(counts.CVIn, pb.bufferSize),
		cvOut:    makeScratch(counts.CVOut, pb.bufferSize),
	}
	pb.nextGroup++
	pb.nodes[n.group] = n
	pb.invalidateOrder()
	return n.group
}

// RemoveNode drops a node and every connection touching it.
func (pb *Patchbay) RemoveNode(group uint32) {
	delete(pb.nodes, group)
	for id, c := range pb.connections {
		if c.SrcGroup == group || c.DstGroup == group {
			delete(pb.connections, id)
		}
	}
	pb.invalidateOrder()
}

// UpdatePluginID follows a table compaction: the node keeps tracking its
// plugin across the renumber.
func (pb *Patchbay) UpdatePluginID(oldID, newID uint32) {
	for _, n := range pb.nodes {
		if n.pluginID == oldID {
			n.pluginID = newID
		}
	}
}

// NodeGroupForPlugin finds the group hosting a plugin id.
func (pb *Patchbay) NodeGroupForPlugin(pluginID uint32) (uint32, bool) {
	for g, n := range pb.nodes {
		if n.pluginID == pluginID {
			return g, true
		}
	}
	return 0, false
}

// Connect adds an edge and returns its connection id. The edge must leave
// an output port and enter an input port; a cycle is rejected.
func (pb *Patchbay) Connect(srcGroup, srcPort, dstGroup, dstPort uint32) (uint32, error) {
	if !pb.validSource(srcGroup, srcPort) || !pb.validDest(dstGroup, dstPort) {
		return 0, errors.Newf("invalid connection %d:%d -> %d:%d", srcGroup, srcPort, dstGroup, dstPort).
			Component("graph").
			Category(errors.CategoryValidation).
			Build()
	}
	if pb.wouldCycle(srcGroup, dstGroup) {
		return 0, errors.Newf("connection %d -> %d would close a cycle", srcGroup, dstGroup).
			Component("graph").
			Category(errors.CategoryValidation).
			Build()
	}

	id := pb.nextConn
	pb.nextConn++
	pb.connections[id] = Connection{ID: id, SrcGroup: srcGroup, SrcPort: srcPort, DstGroup: dstGroup, DstPort: dstPort}
	pb.invalidateOrder()
	return id, nil
}

// Disconnect removes an edge by its id.
func (pb *Patchbay) Disconnect(id uint32) error {
	if _, ok := pb.connections[id]; !ok {
		return errors.Newf("unknown connection id %d", id).
			Component("graph").
			Category(errors.CategoryNotFound).
			Build()
	}
	delete(pb.connections, id)
	pb.invalidateOrder()
	return nil
}

// Connections returns the live connection set.
func (pb *Patchbay) Connections() []Connection {
	out := make([]Connection, 0, len(pb.connections))
	for _, c := range pb.connections {
		out = append(out, c)
	}
	return out
}

func (pb *Patchbay) validSource(group, port uint32) bool {
	switch group {
	case GroupAudioIn:
		return port < pb.extAudioIns
	case GroupCVIn:
		return port < pb.extCVIns
	case GroupMidiIn:
		return port == 0
	}
	n, ok := pb.nodes[group]
	return ok && port < uint32(len(n.audioOut)+len(n.cvOut))
}

func (pb *Patchbay) validDest(group, port uint32) bool {
	switch group {
	case GroupAudioOut:
		return port < pb.extAudioOuts
	case GroupCVOut:
		return port < pb.extCVOuts
	case GroupMidiOut:
		return port == 0
	}
	n, ok := pb.nodes[group]
	return ok && port < uint32(len(n.audioIn)+len(n.cvIn))
}

// wouldCycle checks whether dst reaches src through existing edges.
func (pb *Patchbay) wouldCycle(src, dst uint32) bool {
	if src == dst {
		return true
	}
	seen := map[uint32]bool{}
	var walk func(from uint32) bool
	walk = func(from uint32) bool {
		if from == src {
			return true
		}
		if seen[from] {
			return false
		}
		seen[from] = true
		for _, c := range pb.connections {
			if c.SrcGroup == from && walk(c.DstGroup) {
				return true
			}
		}
		return false
	}
	return walk(dst)
}

func (pb *Patchbay) invalidateOrder() {
	pb.order = nil
}

// topoOrder computes (and caches) a processing order of plugin groups.
func (pb *Patchbay) topoOrder() []uint32 {
	if pb.order != nil {
		return pb.order
	}
	indeg := map[uint32]int{}
	for g := range pb.nodes {
		indeg[g] = 0
	}
	for _, c := range pb.connections {
		if _, ok := pb.nodes[c.DstGroup]; ok {
			if _, ok := pb.nodes[c.SrcGroup]; ok {
				indeg[c.DstGroup]++
			}
		}
	}
	var queue, order []uint32
	for g, d := range indeg {
		if d == 0 {
			queue = append(queue, g)
		}
	}
	for len(queue) > 0 {
		g := queue[0]
		queue = queue[1:]
		order = append(order, g)
		for _, c := range pb.connections {
			if c.SrcGroup != g {
				continue
			}
			if _, ok := pb.nodes[c.DstGroup]; !ok {
				continue
			}
			indeg[c.DstGroup]--
			if indeg[c.DstGroup] == 0 {
				queue = append(queue, c.DstGroup)
			}
		}
	}
	pb.order = order
	return order
}

// Process routes one cycle through the node graph.
func (pb *Patchbay) Process(plugins []plugin.Handle, inBufs, outBufs [][]float32, frames uint32,
	inEvents, outEvents *event.Buffer) {

	// Accumulate each node's inputs from its incoming edges, then run it.
	for _, g := range pb.topoOrder() {
		n := pb.nodes[g]
		p := pluginByID(plugins, n.pluginID)
		if p == nil {
			continue
		}

		zeroBufs(n.audioIn, frames)
		zeroBufs(n.cvIn, frames)
		midiConnected := false
		for _, c := range pb.connections {
			if c.DstGroup != g {
				continue
			}
			if c.SrcGroup == GroupMidiIn {
				midiConnected = true
				continue
			}
			src := pb.sourceBuffer(c.SrcGroup, c.SrcPort, inBufs)
			if src == nil {
				continue
			}
			dst := pb.destBuffer(n, c.DstPort)
			if dst == nil {
				continue
			}
			for k := range frames {
				dst[k] += src[k]
			}
		}

		if midiConnected {
			copyEvents(p.EventIn(), inEvents)
		} else {
			p.EventIn().Clear()
		}

		p.Process(n.audioIn, n.audioOut, n.cvIn, n.cvOut, frames)
		p.EventIn().Clear()
	}

	// External outputs sum their incoming edges.
	zeroBufs(outBufs, frames)
	for _, c := range pb.connections {
		var dst []float32
		switch c.DstGroup {
		case GroupAudioOut:
			if c.DstPort < uint32(len(outBufs)) {
				dst = outBufs[c.DstPort]
			}
		case GroupCVOut:
			idx := pb.extAudioOuts + c.DstPort
			if idx < uint32(len(outBufs)) {
				dst = outBufs[idx]
			}
		case GroupMidiOut:
			if n, ok := pb.nodes[c.SrcGroup]; ok {
				if p := pluginByID(plugins, n.pluginID); p != nil {
					for _, e := range p.EventOut().Events() {
						outEvents.Append(e)
					}
				}
			}
			continue
		default:
			continue
		}
		if dst == nil {
			continue
		}
		src := pb.sourceBuffer(c.SrcGroup, c.SrcPort, inBufs)
		if src == nil {
			continue
		}
		for k := range frames {
			dst[k] += src[k]
		}
	}
}

// sourceBuffer resolves an output port to its backing buffer.
func (pb *Patchbay) sourceBuffer(group, port uint32, inBufs [][]float32) []float32 {
	switch group {
	case GroupAudioIn:
		if port < uint32(len(inBufs)) {
			return inBufs[port]
		}
		return nil
	case GroupCVIn:
		idx := pb.extAudioIns + port
		if idx < uint32(len(inBufs)) {
			return inBufs[idx]
		}
		return nil
	}
	n, ok := pb.nodes[group]
	if !ok {
		return nil
	}
	if port < uint32(len(n.audioOut)) {
		return n.audioOut[port]
	}
	port -= uint32(len(n.audioOut))
	if port < uint32(len(n.cvOut)) {
		return n.cvOut[port]
	}
	return nil
}

// destBuffer resolves a node input port to its accumulation buffer.
func (pb *Patchbay) destBuffer(n *node, port uint32) []float32 {
	if port < uint32(len(n.audioIn)) {
		return n.audioIn[port]
	}
	port -= uint32(len(n.audioIn))
	if port < uint32(len(n.cvIn)) {
		return n.cvIn[port]
	}
	return nil
}

// Snapshot walks the graph and returns the full topology for the UI.
func (pb *Patchbay) Snapshot(plugins []plugin.Handle) ([]NodeInfo, []Connection) {
	infos := []NodeInfo{
		externalNode(GroupAudioIn, "audio-in", pb.extAudioIns, false, false),
		externalNode(GroupAudioOut, "audio-out", pb.extAudioOuts, false, true),
		externalNode(GroupCVIn, "cv-in", pb.extCVIns, true, false),
		externalNode(GroupCVOut, "cv-out", pb.extCVOuts, true, true),
		{Group: GroupMidiIn, Name: "midi-in", Ports: []PortInfo{{Index: 0, Name: "events-out", IsMidi: true}}},
		{Group: GroupMidiOut, Name: "midi-out", Ports: []PortInfo{{Index: 0, Name: "events-in", IsMidi: true, Input: true}}},
	}

	for g, n := range pb.nodes {
		p := pluginByID(plugins, n.pluginID)
		if p == nil {
			continue
		}
		ni := NodeInfo{Group: g, Name: p.Info().Name}
		idx := uint32(0)
		for _, port := range p.AudioInPorts() {
			ni.Ports = append(ni.Ports, PortInfo{Index: idx, Name: port.Name, Input: true})
			idx++
		}
		for _, port := range p.CVInPorts() {
			ni.Ports = append(ni.Ports, PortInfo{Index: idx, Name: port.Name, IsCV: true, Input: true})
			idx++
		}
		for _, port := range p.AudioOutPorts() {
			ni.Ports = append(ni.Ports, PortInfo{Index: idx, Name: port.Name})
			idx++
		}
		for _, port := range p.CVOutPorts() {
			ni.Ports = append(ni.Ports, PortInfo{Index: idx, Name: port.Name, IsCV: true})
			idx++
		}
		infos = append(infos, ni)
	}
	return infos, pb.Connections()
}

func externalNode(group uint32, name string, ports uint32, isCV, isInput bool) NodeInfo {
	ni := NodeInfo{Group: group, Name: name}
	for i := range ports {
		ni.Ports = append(ni.Ports, PortInfo{Index: i, Name: name, IsCV: isCV, Input: isInput})
	}
	return ni
}

func pluginByID(plugins []plugin.Handle, id uint32) plugin.Handle {
	if id < uint32(len(plugins)) && plugins[id] != nil && plugins[id].ID() == id {
		return plugins[id]
	}
	for _, p := range plugins {
		if p != nil && p.ID() == id {
			return p
		}
	}
	return nil
}
