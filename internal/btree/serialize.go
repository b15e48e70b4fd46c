package btree

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"quelldb/pkg/dberr"
)

const fileHeader = "IDXTREE V1"

// SaveToFile writes the tree to path in the engine's textual index
// format: a header line, page-size/key-length/root/next-id lines, then
// one NODE block per arena entry, each carrying its keys and (for leaves)
// values or (for internal nodes) children. Keys and values are
// hex-escaped so arbitrary byte content round-trips exactly.
func (t *Tree) SaveToFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return dberr.Wrapf(dberr.Corrupted, err, "creating index file %q", path)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	fmt.Fprintln(w, fileHeader)
	fmt.Fprintf(w, "PAGE_SIZE %d\n", t.pageSize)
	fmt.Fprintf(w, "KEY_LENGTH %d\n", t.keyLength)
	fmt.Fprintf(w, "ROOT %d\n", t.root)
	fmt.Fprintf(w, "NEXT %d\n", t.nextID)
	fmt.Fprintf(w, "NODE_COUNT %d\n", len(t.nodes))

	ids := make([]int, 0, len(t.nodes))
	for id := range t.nodes {
		ids = append(ids, id)
	}
	sortInts(ids)

	for _, id := range ids {
		n := t.nodes[id]
		kind := "INTERNAL"
		if n.isLeaf {
			kind = "LEAF"
		}
		fmt.Fprintf(w, "NODE %d %s\n", n.id, kind)
		fmt.Fprintf(w, "KEYS %d\n", len(n.keys))
		for _, k := range n.keys {
			fmt.Fprintln(w, hex.EncodeToString([]byte(k)))
		}
		if n.isLeaf {
			fmt.Fprintf(w, "VALUES %d\n", len(n.values))
			for _, v := range n.values {
				fmt.Fprintln(w, hex.EncodeToString([]byte(v)))
			}
			fmt.Fprintf(w, "NEXT_LEAF %d\n", n.next)
		} else {
			fmt.Fprintf(w, "CHILDREN %d\n", len(n.children))
			for _, c := range n.children {
				fmt.Fprintln(w, c)
			}
		}
	}

	return w.Flush()
}

// LoadFromFile reconstructs a tree from a file written by SaveToFile. It
// rejects the file with dberr.Corrupted if its stored page size or key
// length does not match expectedPageSize/expectedKeyLength, so a stale or
// mismatched index file cannot be silently loaded against the wrong
// table definition.
func LoadFromFile(path string, expectedPageSize, expectedKeyLength int) (*Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, dberr.Wrapf(dberr.Corrupted, err, "opening index file %q", path)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	readLine := func() (string, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", dberr.Wrapf(dberr.Corrupted, err, "reading index file %q", path)
			}
			return "", dberr.Newf(dberr.Corrupted, "unexpected end of index file %q", path)
		}
		return sc.Text(), nil
	}

	header, err := readLine()
	if err != nil {
		return nil, err
	}
	if header != fileHeader {
		return nil, dberr.Newf(dberr.Corrupted, "unrecognized index file header %q", header)
	}

	pageSize, err := readIntField(readLine, "PAGE_SIZE")
	if err != nil {
		return nil, err
	}
	keyLength, err := readIntField(readLine, "KEY_LENGTH")
	if err != nil {
		return nil, err
	}
	root, err := readIntField(readLine, "ROOT")
	if err != nil {
		return nil, err
	}
	next, err := readIntField(readLine, "NEXT")
	if err != nil {
		return nil, err
	}
	nodeCount, err := readIntField(readLine, "NODE_COUNT")
	if err != nil {
		return nil, err
	}
	if pageSize != expectedPageSize {
		return nil, dberr.Newf(dberr.Corrupted, "index file %q has page size %d, expected %d", path, pageSize, expectedPageSize)
	}
	if keyLength != expectedKeyLength {
		return nil, dberr.Newf(dberr.Corrupted, "index file %q has key length %d, expected %d", path, keyLength, expectedKeyLength)
	}

	t := New(pageSize, keyLength)
	t.root = root
	t.nextID = next
	t.nodes = make(map[int]*node, nodeCount)

	for i := 0; i < nodeCount; i++ {
		line, err := readLine()
		if err != nil {
			return nil, err
		}
		fields := strings.Fields(line)
		if len(fields) != 3 || fields[0] != "NODE" {
			return nil, dberr.Newf(dberr.Corrupted, "malformed NODE line %q", line)
		}
		id, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, dberr.Wrapf(dberr.Corrupted, err, "parsing node id in %q", line)
		}
		n := &node{id: id, isLeaf: fields[2] == "LEAF"}

		numKeys, err := readIntField(readLine, "KEYS")
		if err != nil {
			return nil, err
		}
		n.keys = make([]string, numKeys)
		for k := 0; k < numKeys; k++ {
			line, err := readLine()
			if err != nil {
				return nil, err
			}
			raw, err := hex.DecodeString(line)
			if err != nil {
				return nil, dberr.Wrapf(dberr.Corrupted, err, "decoding key in node %d", id)
			}
			n.keys[k] = string(raw)
		}

		if n.isLeaf {
			numValues, err := readIntField(readLine, "VALUES")
			if err != nil {
				return nil, err
			}
			n.values = make([]string, numValues)
			for v := 0; v < numValues; v++ {
				line, err := readLine()
				if err != nil {
					return nil, err
				}
				raw, err := hex.DecodeString(line)
				if err != nil {
					return nil, dberr.Wrapf(dberr.Corrupted, err, "decoding value in node %d", id)
				}
				n.values[v] = string(raw)
			}
			nextLeaf, err := readIntField(readLine, "NEXT_LEAF")
			if err != nil {
				return nil, err
			}
			n.next = nextLeaf
		} else {
			numChildren, err := readIntField(readLine, "CHILDREN")
			if err != nil {
				return nil, err
			}
			n.children = make([]int, numChildren)
			for c := 0; c < numChildren; c++ {
				line, err := readLine()
				if err != nil {
					return nil, err
				}
				cid, err := strconv.Atoi(line)
				if err != nil {
					return nil, dberr.Wrapf(dberr.Corrupted, err, "decoding child id in node %d", id)
				}
				n.children[c] = cid
			}
		}

		t.nodes[id] = n
	}

	return t, nil
}

func readIntField(readLine func() (string, error), name string) (int, error) {
	line, err := readLine()
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(line)
	if len(fields) != 2 || fields[0] != name {
		return 0, dberr.Newf(dberr.Corrupted, "expected %s line, got %q", name, line)
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, dberr.Wrapf(dberr.Corrupted, err, "parsing %s value", name)
	}
	return n, nil
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
